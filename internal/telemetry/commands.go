// SPDX-License-Identifier: MIT
package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Jdubz/blinky-time-sub007/internal/config"
)

// ParamStore is the runtime parameter surface exposed to clients.
// Apply must validate the whole set and queue the swap for the next
// tick boundary; a validation error leaves the running set untouched.
type ParamStore interface {
	Current() config.Params
	Apply(config.Params) error
	ResetDefaults()
}

// SessionResetter is implemented by stores that can also discard all
// analysis state and start a fresh session.
type SessionResetter interface {
	RequestReset()
}

// command is the inbound envelope: {"cmd":"set","params":{...}},
// {"cmd":"get"}, {"cmd":"defaults"}, {"cmd":"stream","on":false},
// {"cmd":"reset"}.
type command struct {
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params,omitempty"`
	On     *bool           `json:"on,omitempty"`
}

type reply struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Commander applies client commands to the parameter store and the
// streamer. Safe for use from the transport's reader goroutines as
// long as the ParamStore implementation is.
type Commander struct {
	store    ParamStore
	streamer *Streamer
	log      *logrus.Logger
}

func NewCommander(store ParamStore, streamer *Streamer, log *logrus.Logger) *Commander {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Commander{store: store, streamer: streamer, log: log}
}

// Handle processes one raw command message and returns the JSON reply.
func (c *Commander) Handle(raw []byte) []byte {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return marshalReply(reply{OK: false, Error: "malformed command: " + err.Error()})
	}

	switch cmd.Cmd {
	case "get":
		return c.replyWithParams()

	case "set":
		if len(cmd.Params) == 0 {
			return marshalReply(reply{OK: false, Error: "set requires params"})
		}
		// JSON is a YAML subset, so the patch decodes against the
		// same tags the config file uses. Fields absent from the
		// patch keep their current values; the merged set is
		// validated as a whole.
		next := c.store.Current()
		if err := yaml.Unmarshal(cmd.Params, &next); err != nil {
			return marshalReply(reply{OK: false, Error: "bad params: " + err.Error()})
		}
		if err := c.store.Apply(next); err != nil {
			if ParamRejections != nil {
				ParamRejections.Inc()
			}
			c.log.WithError(err).Warn("parameter set rejected")
			return marshalReply(reply{OK: false, Error: err.Error()})
		}
		c.log.Info("parameter set updated")
		return c.replyWithParams()

	case "defaults":
		c.store.ResetDefaults()
		c.log.Info("parameters reset to defaults")
		return c.replyWithParams()

	case "stream":
		if cmd.On == nil {
			return marshalReply(reply{OK: false, Error: "stream requires on:true|false"})
		}
		c.streamer.SetEnabled(*cmd.On)
		// Disabling the stream ends the listening session; analysis
		// state restarts fresh when the consumer comes back.
		if !*cmd.On {
			if r, ok := c.store.(SessionResetter); ok {
				r.RequestReset()
			}
		}
		return marshalReply(reply{OK: true})

	case "reset":
		r, ok := c.store.(SessionResetter)
		if !ok {
			return marshalReply(reply{OK: false, Error: "reset not supported"})
		}
		r.RequestReset()
		c.log.Info("session reset requested")
		return marshalReply(reply{OK: true})

	default:
		return marshalReply(reply{OK: false, Error: fmt.Sprintf("unknown command %q", cmd.Cmd)})
	}
}

func (c *Commander) replyWithParams() []byte {
	m, err := paramsToMap(c.store.Current())
	if err != nil {
		return marshalReply(reply{OK: false, Error: err.Error()})
	}
	return marshalReply(reply{OK: true, Params: m})
}

// paramsToMap round-trips the set through its yaml tags so the JSON
// reply uses the same field names as the config file.
func paramsToMap(p config.Params) (map[string]any, error) {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalReply(r reply) []byte {
	out, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"ok":false,"error":"internal encode failure"}`)
	}
	return out
}
