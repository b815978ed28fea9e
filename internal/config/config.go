// Package config loads process-wide configuration: deployment settings,
// authentication secrets, and the realtime-session defaults that seed the
// control plane (pkg/controlplane).
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything read from the environment exactly once at
// startup. Session-default fields here become the control plane's
// defaults layer (§4.3); everything else is deployment/auth wiring.
type Config struct {
	// Authentication against the model provider.
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIOrgID     string `envconfig:"OPENAI_ORG_ID"`
	OpenAIProjectID string `envconfig:"OPENAI_PROJECT_ID"`

	// Authentication against / identity of the telephony carrier.
	CarrierAccountSID string `envconfig:"CARRIER_ACCOUNT_SID"`
	CarrierAuthToken  string `envconfig:"CARRIER_AUTH_TOKEN"`
	CarrierFromNumber string `envconfig:"CARRIER_FROM_NUMBER"`

	// Deployment.
	PublicBaseURL     string `envconfig:"PUBLIC_BASE_URL"`
	ExternalBridgeURL string `envconfig:"EXTERNAL_BRIDGE_URL"`
	ListenAddr        string `envconfig:"LISTEN_ADDR" default:":8080"`
	DefaultTwiMLMode  string `envconfig:"DEFAULT_TWIML_MODE" default:"sip"`

	// Control webhook / admin auth.
	ControlSecret           string `envconfig:"REALTIME_CONTROL_SECRET"`
	ControlSigningSecret    string `envconfig:"REALTIME_CONTROL_SIGNING_SECRET"`
	ControlAdminSecret      string `envconfig:"REALTIME_CONTROL_ADMIN_SECRET"`
	ControlToleranceSeconds int    `envconfig:"REALTIME_CONTROL_TOLERANCE_SECONDS" default:"300"`

	// Backing stores.
	RedisURL    string `envconfig:"REDIS_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Session defaults (control-plane layer 1, §4.3).
	Voice                   string  `envconfig:"SESSION_VOICE" default:"alloy"`
	Modalities              string  `envconfig:"SESSION_MODALITIES" default:"audio,text"`
	Temperature             float64 `envconfig:"SESSION_TEMPERATURE" default:"0.8"`
	MaxOutputTokens         string  `envconfig:"SESSION_MAX_OUTPUT_TOKENS" default:"unbounded"`
	TurnDetectionMode       string  `envconfig:"SESSION_TURN_DETECTION_MODE" default:"server_vad"`
	VADThreshold            float64 `envconfig:"SESSION_VAD_THRESHOLD" default:"0.5"`
	VADPrefixPaddingMs      int     `envconfig:"SESSION_VAD_PREFIX_PADDING_MS" default:"300"`
	VADSilenceDurationMs    int     `envconfig:"SESSION_VAD_SILENCE_DURATION_MS" default:"500"`
	VADCreateResponse       bool    `envconfig:"SESSION_VAD_CREATE_RESPONSE" default:"true"`
	VADInterruptResponse    bool    `envconfig:"SESSION_VAD_INTERRUPT_RESPONSE" default:"true"`
	InputSampleRate         int     `envconfig:"SESSION_INPUT_SAMPLE_RATE" default:"8000"`
	CodecPreference         string  `envconfig:"SESSION_CODEC_PREFERENCE" default:"g711_ulaw"`
	TranscriptionEnabled    bool    `envconfig:"SESSION_TRANSCRIPTION_ENABLED" default:"true"`
	TranscriptionModel      string  `envconfig:"SESSION_TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionLanguage   string  `envconfig:"SESSION_TRANSCRIPTION_LANGUAGE"`
	TranscriptionPrompt     string  `envconfig:"SESSION_TRANSCRIPTION_PROMPT"`
	NoiseReduction          string  `envconfig:"SESSION_NOISE_REDUCTION" default:"near_field"`
	DefaultInstructions     string  `envconfig:"SESSION_DEFAULT_INSTRUCTIONS"`
	DefaultPromptID         string  `envconfig:"SESSION_DEFAULT_PROMPT_ID"`
	DefaultPromptVersion    string  `envconfig:"SESSION_DEFAULT_PROMPT_VERSION"`
	DefaultModel            string  `envconfig:"SESSION_DEFAULT_MODEL" default:"gpt-realtime"`
	CredentialExpirySeconds int     `envconfig:"SESSION_CREDENTIAL_EXPIRY_SECONDS" default:"600"`

	ModelWebSocketHost string `envconfig:"MODEL_WEBSOCKET_HOST" default:"api.openai.com"`
	ModelCredentialURL string `envconfig:"MODEL_CREDENTIAL_URL" default:"https://api.openai.com/v1/realtime/client_secrets"`

	// SIPGateway is the SIP trunk gateway host the call-control document
	// builder (E) dials in SIP mode.
	SIPGateway string `envconfig:"SIP_GATEWAY"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads a local .env file (if present) then parses the process
// environment into Config. Missing .env is not an error — envconfig still
// applies its defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvVar describes one recognized environment variable for /env-check.
type EnvVar struct {
	Name     string
	Required bool
}

// RecognizedEnvVars is the full set of variables spec.md §6 calls out,
// partitioned into required vs optional.
var RecognizedEnvVars = []EnvVar{
	{"OPENAI_API_KEY", true},
	{"OPENAI_ORG_ID", false},
	{"OPENAI_PROJECT_ID", false},
	{"CARRIER_ACCOUNT_SID", true},
	{"CARRIER_AUTH_TOKEN", true},
	{"CARRIER_FROM_NUMBER", false},
	{"PUBLIC_BASE_URL", true},
	{"EXTERNAL_BRIDGE_URL", false},
	{"REALTIME_CONTROL_SECRET", false},
	{"REALTIME_CONTROL_SIGNING_SECRET", false},
	{"REALTIME_CONTROL_ADMIN_SECRET", false},
	{"REALTIME_CONTROL_TOLERANCE_SECONDS", false},
	{"REDIS_URL", false},
	{"DATABASE_URL", false},
	{"SESSION_VOICE", false},
	{"SESSION_MODALITIES", false},
	{"SESSION_TEMPERATURE", false},
	{"SESSION_MAX_OUTPUT_TOKENS", false},
	{"SESSION_TURN_DETECTION_MODE", false},
	{"SESSION_VAD_THRESHOLD", false},
	{"SESSION_VAD_PREFIX_PADDING_MS", false},
	{"SESSION_VAD_SILENCE_DURATION_MS", false},
	{"SESSION_VAD_CREATE_RESPONSE", false},
	{"SESSION_INPUT_SAMPLE_RATE", false},
	{"SESSION_CODEC_PREFERENCE", false},
	{"SESSION_TRANSCRIPTION_ENABLED", false},
	{"SESSION_TRANSCRIPTION_MODEL", false},
	{"SESSION_TRANSCRIPTION_LANGUAGE", false},
	{"SESSION_TRANSCRIPTION_PROMPT", false},
	{"SESSION_NOISE_REDUCTION", false},
	{"SESSION_DEFAULT_INSTRUCTIONS", false},
	{"SESSION_DEFAULT_PROMPT_ID", false},
	{"SESSION_DEFAULT_PROMPT_VERSION", false},
	{"SESSION_CREDENTIAL_EXPIRY_SECONDS", false},
	{"SIP_GATEWAY", false},
}

// EnvCheck reports, for every recognized variable, whether it is currently
// set in the process environment. Used by GET /env-check.
func EnvCheck() map[string]bool {
	result := make(map[string]bool, len(RecognizedEnvVars))
	for _, v := range RecognizedEnvVars {
		_, ok := os.LookupEnv(v.Name)
		result[v.Name] = ok
	}
	return result
}
