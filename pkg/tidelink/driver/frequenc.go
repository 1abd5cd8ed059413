package driver

import "github.com/rs/zerolog"

// FrequenC speaks to a FrequenC node, which exposes the same contract
// under a /v1 prefix and without session resuming.
type FrequenC struct {
	*transport
}

// NewFrequenC creates an unbound FrequenC driver.
func NewFrequenC(log zerolog.Logger) *FrequenC {
	d := &FrequenC{}
	d.transport = newTransport(frequenCVariant{}, log)
	return d
}

type frequenCVariant struct{}

func (frequenCVariant) kind() Kind           { return KindFrequenC }
func (frequenCVariant) restPrefix() string   { return "/v1" }
func (frequenCVariant) socketPath() string   { return "/v1/websocket" }
func (frequenCVariant) supportsResume() bool { return false }
