package chat

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Copy holds the user-facing text shown in place of an assistant reply.
type Copy struct {
	Auth        string `yaml:"auth"`
	NotFound    string `yaml:"not_found"`
	RateLimited string `yaml:"rate_limited"`
	Server      string `yaml:"server"`
	Unknown     string `yaml:"unknown"`
	Empty       string `yaml:"empty"`
	Welcome     string `yaml:"welcome"`
}

// DefaultCopy returns the built-in wording.
func DefaultCopy() Copy {
	return Copy{
		Auth:        "I'm having trouble connecting right now. Please try again in a moment.",
		NotFound:    "I apologize, but I'm having trouble connecting to our systems right now. Please try again in a moment.",
		RateLimited: "I'm experiencing high traffic right now. Please wait a moment and try again.",
		Server:      "Our servers are temporarily unavailable. Please try again shortly.",
		Unknown:     "I apologize, but I'm having trouble connecting to our systems right now. Please try again in a moment.",
		Empty:       "I'm here to help! Could you please rephrase your question?",
		Welcome:     "Welcome! I'm here to help you with your onboarding. How can I assist you?",
	}
}

// LoadCopy reads overrides from a YAML file. Keys left blank keep the default.
func LoadCopy(path string) (Copy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Copy{}, fmt.Errorf("reading copy file: %w", err)
	}

	var c Copy
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Copy{}, fmt.Errorf("parsing copy file: %w", err)
	}
	return c.withDefaults(), nil
}

// For returns the text for a failure kind. The result is never empty.
func (c Copy) For(kind Kind) string {
	c = c.withDefaults()
	switch kind {
	case KindAuth:
		return c.Auth
	case KindNotFound:
		return c.NotFound
	case KindRateLimited:
		return c.RateLimited
	case KindServer:
		return c.Server
	default:
		return c.Unknown
	}
}

// EmptyReply is shown when the agent answers with nothing.
func (c Copy) EmptyReply() string {
	return c.withDefaults().Empty
}

// WelcomeText is shown when a greeting produced no usable reply.
func (c Copy) WelcomeText() string {
	return c.withDefaults().Welcome
}

func (c Copy) withDefaults() Copy {
	def := DefaultCopy()
	fill := func(v *string, fallback string) {
		if strings.TrimSpace(*v) == "" {
			*v = fallback
		}
	}
	fill(&c.Auth, def.Auth)
	fill(&c.NotFound, def.NotFound)
	fill(&c.RateLimited, def.RateLimited)
	fill(&c.Server, def.Server)
	fill(&c.Unknown, def.Unknown)
	fill(&c.Empty, def.Empty)
	fill(&c.Welcome, def.Welcome)
	return c
}
