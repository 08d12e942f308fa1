package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ContextProvider acquires the clinical context snapshot for a patient. Fetch
// must honour ctx cancellation; the service bounds every call with the
// configured fetch timeout.
type ContextProvider interface {
	Fetch(ctx context.Context, patientID string) (*ContextSnapshot, error)
}

// ---------------------------------------------------------------------------
// Deterministic provider
// ---------------------------------------------------------------------------

// DeterministicProvider returns a fixed clinical dataset after a small fixed
// latency. It never fails and doubles as the fallback for the live provider.
// The dataset deliberately carries a penicillin allergy so the safety gate
// has something to trip on in demo environments.
type DeterministicProvider struct {
	Latency time.Duration
}

// NewDeterministicProvider uses a 150ms latency, short enough for tests.
func NewDeterministicProvider() *DeterministicProvider {
	return &DeterministicProvider{Latency: 150 * time.Millisecond}
}

func (p *DeterministicProvider) Fetch(ctx context.Context, patientID string) (*ContextSnapshot, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &ContextSnapshot{
		PatientID: patientID,
		Timeline: []TimelineItem{
			{Date: "2024-01-15", Type: "consultation", Summary: "Consultation cardiologie – bilan hypertension"},
			{Date: "2024-02-20", Type: "consultation", Summary: "Suivi tension – adaptation traitement"},
			{Date: "2024-03-10", Type: "consultation", Summary: "ECG de contrôle – RAS"},
			{Date: "2023-06-01", Type: "diagnostic", Summary: "Hypertension essentielle (I10)"},
			{Date: "2022-01-15", Type: "diagnostic", Summary: "Diabète de type 2 (E11)"},
		},
		Alerts: []Alert{
			{Level: AlertLevelHigh, Message: "Allergie à la Pénicilline – ne pas prescrire"},
			{Level: AlertLevelMedium, Message: "Interaction possible AINS / antihypertenseur – surveiller"},
			{Level: AlertLevelMedium, Message: "Dernière HbA1c 7.2% – objectif < 7%"},
		},
	}, nil
}

// ---------------------------------------------------------------------------
// Live provider
// ---------------------------------------------------------------------------

// responseSchema is the strict contract for the reasoning service's output.
// Unknown fields on items are rejected, dates must be ISO, alert levels must
// be HIGH or MEDIUM. Anything that fails here is treated as a provider
// failure, never injected into a machine.
const responseSchema = `{
  "type": "object",
  "required": ["timeline", "alerts"],
  "properties": {
    "timeline": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["date", "type", "summary"],
        "additionalProperties": false,
        "properties": {
          "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}(T\\d{2}:\\d{2}:\\d{2}(\\.\\d+)?Z?)?$"},
          "type": {"type": "string", "minLength": 1},
          "summary": {"type": "string"}
        }
      }
    },
    "alerts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["level", "message"],
        "additionalProperties": false,
        "properties": {
          "level": {"type": "string", "enum": ["HIGH", "MEDIUM"]},
          "message": {"type": "string"}
        }
      }
    }
  }
}`

var compiledResponseSchema = jsonschema.MustCompileString("oracle-response.json", responseSchema)

// LiveProvider calls an external reasoning service over HTTP and validates
// its JSON output against the strict schema before accepting it.
type LiveProvider struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewLiveProvider builds a provider with a client whose timeout backstops
// the per-call context deadline.
func NewLiveProvider(url, apiKey string, timeout time.Duration) *LiveProvider {
	return &LiveProvider{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

type liveRequest struct {
	PatientID string `json:"patientId"`
}

func (p *LiveProvider) Fetch(ctx context.Context, patientID string) (*ContextSnapshot, error) {
	body, err := json.Marshal(liveRequest{PatientID: patientID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	res, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reasoning service call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("reasoning service status %d: %s", res.StatusCode, msg)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseProviderResponse(raw, patientID)
}

// parseProviderResponse validates the raw JSON against the strict schema and
// maps it into a ContextSnapshot.
func parseProviderResponse(raw []byte, patientID string) (*ContextSnapshot, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON from reasoning service: %w", err)
	}
	if err := compiledResponseSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("reasoning service output rejected by schema: %w", err)
	}

	var parsed struct {
		Timeline []TimelineItem `json:"timeline"`
		Alerts   []Alert        `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &ContextSnapshot{
		PatientID: patientID,
		Timeline:  parsed.Timeline,
		Alerts:    parsed.Alerts,
	}, nil
}

// ---------------------------------------------------------------------------
// Fallback composition
// ---------------------------------------------------------------------------

// FallbackProvider tries the primary provider and, on any failure (network,
// timeout, schema rejection), serves the fallback instead. The machine only
// sees a failure if the fallback itself fails, which the deterministic
// provider never does.
type FallbackProvider struct {
	Primary  ContextProvider
	Fallback ContextProvider
	Logger   zerolog.Logger
}

func (p *FallbackProvider) Fetch(ctx context.Context, patientID string) (*ContextSnapshot, error) {
	snap, err := p.Primary.Fetch(ctx, patientID)
	if err == nil {
		return snap, nil
	}
	p.Logger.Warn().
		Err(err).
		Str("patient_id", patientID).
		Msg("live context provider failed, running in deterministic fallback mode")
	return p.Fallback.Fetch(ctx, patientID)
}
