package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider selects the conversation gateway implementation.
type Provider string

const (
	ProviderRetell  Provider = "retell"
	ProviderBackend Provider = "backend"
	ProviderArk     Provider = "ark"
)

const defaultAgentID = "onboarding-assistant"

// Config aggregates the service configuration.
type Config struct {
	Server       ServerConfig
	Gateway      GatewayConfig
	Retell       RetellConfig
	Backend      BackendConfig
	AI           AIConfig
	Conversation ConversationConfig
	Log          LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	retell, err := loadRetellConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	conversation, err := loadConversationConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		Gateway:      gateway,
		Retell:       retell,
		Backend:      backend,
		AI:           ai,
		Conversation: conversation,
		Log:          logCfg,
	}, nil
}

// Validate checks that the selected gateway has everything it needs.
func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case ProviderRetell:
		if c.Retell.APIKey == "" {
			return errors.New("RETELL_API_KEY is required for the retell provider")
		}
		if c.Retell.AgentID == "" {
			return errors.New("RETELL_AGENT_ID is required for the retell provider")
		}
	case ProviderBackend:
		if c.Backend.URL == "" {
			return errors.New("CHAT_BACKEND_URL is required for the backend provider")
		}
	case ProviderArk:
		if !c.AI.Enabled() {
			return errors.New("ark provider needs Model plus ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown GATEWAY_PROVIDER %q", c.Gateway.Provider)
	}
	return nil
}

// ServerConfig describes the HTTP server.
type ServerConfig struct {
	Addr string
}

// loadServerConfig parses the listen address.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// GatewayConfig selects the conversation gateway.
type GatewayConfig struct {
	Provider Provider
}

func loadGatewayConfig() (GatewayConfig, error) {
	raw := strings.ToLower(getEnvOrDefault("GATEWAY_PROVIDER", string(ProviderRetell)))
	provider := Provider(raw)
	switch provider {
	case ProviderRetell, ProviderBackend, ProviderArk:
		return GatewayConfig{Provider: provider}, nil
	default:
		return GatewayConfig{}, fmt.Errorf("invalid GATEWAY_PROVIDER value %q", raw)
	}
}

// RetellConfig holds the hosted agent platform connection settings.
type RetellConfig struct {
	APIKey  string
	AgentID string
	BaseURL string
	Timeout time.Duration
}

func loadRetellConfig() (RetellConfig, error) {
	timeout, err := parseSecondsEnv("RETELL_TIMEOUT_SECONDS", 30)
	if err != nil {
		return RetellConfig{}, err
	}

	return RetellConfig{
		APIKey:  strings.TrimSpace(os.Getenv("RETELL_API_KEY")),
		AgentID: strings.TrimSpace(os.Getenv("RETELL_AGENT_ID")),
		BaseURL: getEnvOrDefault("RETELL_BASE_URL", "https://api.retellai.com"),
		Timeout: timeout,
	}, nil
}

// BackendConfig describes the stateless chat backend.
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	timeout, err := parseSecondsEnv("CHAT_BACKEND_TIMEOUT_SECONDS", 30)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		URL:     strings.TrimRight(strings.TrimSpace(os.Getenv("CHAT_BACKEND_URL")), "/"),
		Timeout: timeout,
	}, nil
}

// AIConfig holds the language model settings.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// AgentID is the profile used by the local agent.
	AgentID string
}

// Enabled reports whether the model and credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		AgentID:     getEnvOrDefault("AGENT_ID", defaultAgentID),
	}, nil
}

// ConversationConfig controls what happens when a conversation is entered.
type ConversationConfig struct {
	EagerStart bool
	Greeting   string
	Intro      string
	CopyFile   string
}

func loadConversationConfig() (ConversationConfig, error) {
	eager, err := parseBoolEnv("CHAT_EAGER_START", false)
	if err != nil {
		return ConversationConfig{}, err
	}

	return ConversationConfig{
		EagerStart: eager,
		Greeting:   strings.TrimSpace(os.Getenv("CHAT_GREETING")),
		Intro:      strings.TrimSpace(os.Getenv("CHAT_INTRO")),
		CopyFile:   strings.TrimSpace(os.Getenv("CHAT_COPY_FILE")),
	}, nil
}

// LogConfig controls the log level and output format.
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", false)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Pretty: pretty,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	if *seconds <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
