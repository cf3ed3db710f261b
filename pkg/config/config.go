package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/papercomputeco/picochat/pkg/completion"
	"github.com/papercomputeco/picochat/pkg/history"
)

// Keys understood by LoadChat and LoadLink.
const (
	KeyAPIKey       = "api_key"
	KeyModelName    = "model_name"
	KeyEndpoint     = "endpoint"
	KeyTemperature  = "temperature"
	KeyTopP         = "top_p"
	KeyMaxTokens    = "max_tokens"
	KeyHistoryLimit = "history_limit"
	KeySystemPrompt = "system_prompt"
	KeyTimeout      = "timeout"

	KeySSID      = "ssid"
	KeyPassword  = "password"
	KeyLinkWait  = "link_wait"
	KeyLinkProbe = "link_probe"

	// LinkTable is the TOML table LoadLink also reads link keys from.
	// Top-level keys take precedence.
	LinkTable = "wifi"
)

// Defaults applied when a key is absent.
const (
	DefaultTemperature  = 0.7
	DefaultTopP         = 1.0
	DefaultMaxTokens    = 200
	DefaultHistoryLimit = 6
	DefaultTimeout      = 60 * time.Second
	DefaultLinkWait     = 10
)

// Chat is the startup configuration of a chat session.
type Chat struct {
	Completion completion.Config

	// HistoryLimit is the number of user/assistant pairs submitted with each request.
	HistoryLimit int

	SystemPrompt string
}

// Link is the startup configuration of the network link.
type Link struct {
	SSID     string
	Password string

	// Attempts is how many one-second checks are made before giving up.
	Attempts int

	// Probe is the host:port dialled to confirm the link carries traffic.
	Probe string
}

// LoadChat builds the chat configuration. api_key and model_name are required.
func LoadChat(s Settings) (Chat, error) {
	apiKey, err := s.Require(KeyAPIKey)
	if err != nil {
		return Chat{}, err
	}
	model, err := s.Require(KeyModelName)
	if err != nil {
		return Chat{}, err
	}

	temperature, err := s.Float(KeyTemperature, DefaultTemperature)
	if err != nil {
		return Chat{}, err
	}
	topP, err := s.Float(KeyTopP, DefaultTopP)
	if err != nil {
		return Chat{}, err
	}
	maxTokens, err := s.Int(KeyMaxTokens, DefaultMaxTokens)
	if err != nil {
		return Chat{}, err
	}
	historyLimit, err := s.Int(KeyHistoryLimit, DefaultHistoryLimit)
	if err != nil {
		return Chat{}, err
	}
	if historyLimit < 0 {
		return Chat{}, &InvalidValueError{
			Key:   KeyHistoryLimit,
			Value: s[KeyHistoryLimit],
			Err:   fmt.Errorf("must not be negative"),
		}
	}
	timeout, err := s.Duration(KeyTimeout, DefaultTimeout)
	if err != nil {
		return Chat{}, err
	}

	endpoint := s.GetOr(KeyEndpoint, completion.DefaultEndpoint)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return Chat{}, &InvalidValueError{Key: KeyEndpoint, Value: endpoint, Err: err}
	}

	return Chat{
		Completion: completion.Config{
			Endpoint:    endpoint,
			APIKey:      apiKey,
			Model:       model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
			Timeout:     timeout,
		},
		HistoryLimit: historyLimit,
		SystemPrompt: s.GetOr(KeySystemPrompt, history.DefaultSystemPrompt),
	}, nil
}

// LoadLink builds the network link configuration. ssid is required. When no
// probe is configured, the host of endpoint is used.
func LoadLink(s Settings, endpoint string) (Link, error) {
	s = withLinkTable(s)

	ssid, err := s.Require(KeySSID)
	if err != nil {
		return Link{}, err
	}

	attempts, err := s.Int(KeyLinkWait, DefaultLinkWait)
	if err != nil {
		return Link{}, err
	}

	probe := s.GetOr(KeyLinkProbe, "")
	if probe == "" {
		probe, err = probeAddr(endpoint)
		if err != nil {
			return Link{}, &InvalidValueError{Key: KeyEndpoint, Value: endpoint, Err: err}
		}
	}

	return Link{
		SSID:     ssid,
		Password: s.GetOr(KeyPassword, ""),
		Attempts: attempts,
		Probe:    probe,
	}, nil
}

// withLinkTable lifts keys of the link table to the top level without
// overriding keys already set there.
func withLinkTable(s Settings) Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	for _, key := range []string{KeySSID, KeyPassword, KeyLinkWait, KeyLinkProbe} {
		v, ok := s[LinkTable+"."+key]
		if !ok {
			continue
		}
		if _, set := out[key]; !set {
			out[key] = v
		}
	}
	return out
}

// probeAddr derives host:port from a URL, defaulting the port from the scheme.
func probeAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", endpoint)
	}

	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
