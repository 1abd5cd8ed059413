package version

const (
	AppName    = "tidelink"
	AppVersion = "0.3.1"
)

// ClientName is sent to the node as Client-Name and User-Agent.
func ClientName() string {
	return AppName + "/" + AppVersion
}
