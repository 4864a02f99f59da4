package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	PublicHost  string

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioCallerNumber string

	AssemblyAIKey string

	DeepInfraKey     string
	DeepInfraBaseURL string
	DeepInfraModel   string
	StreamReplies    bool

	PatientName   string
	PatientAge    int
	PatientNumber string

	DataDir      string
	ScheduleFile string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	publicHost := os.Getenv("PUBLIC_HOST")
	if publicHost == "" {
		log.Println("Warning: PUBLIC_HOST not set - playback redirects and call placement will not work")
	}

	accountSID := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if accountSID == "" || authToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - telephony will not work")
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}

	deepInfraKey := os.Getenv("DEEPINFRA_API_KEY")
	if deepInfraKey == "" {
		log.Println("Warning: DEEPINFRA_API_KEY not set - reply generation will not work")
	}

	patientAge := 75
	if raw := os.Getenv("PATIENT_AGE"); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			log.Printf("Warning: invalid PATIENT_AGE %q, using default", raw)
		} else {
			patientAge = age
		}
	}

	patientName := os.Getenv("PATIENT_NAME")
	if patientName == "" {
		patientName = "Paul"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}

	log.Printf("config: HTTP_ADDRESS=%s PUBLIC_HOST=%s", addr, publicHost)
	return Config{
		HTTPAddress:            addr,
		PublicHost:             publicHost,
		TwilioAccountSID:       accountSID,
		TwilioAuthToken:        authToken,
		TwilioCallerNumber:     os.Getenv("TWILIO_CALLER_NUMBER"),
		AssemblyAIKey:          assemblyAIKey,
		DeepInfraKey:           deepInfraKey,
		DeepInfraBaseURL:       os.Getenv("DEEPINFRA_BASE_URL"),
		DeepInfraModel:         os.Getenv("DEEPINFRA_MODEL_ID"),
		StreamReplies:          os.Getenv("STREAM_REPLIES") == "true",
		PatientName:            patientName,
		PatientAge:             patientAge,
		PatientNumber:          os.Getenv("PATIENT_NUMBER"),
		DataDir:                dataDir,
		ScheduleFile:           getEnv("SCHEDULE_FILE", "call_schedule.json"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "call-summaries"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
