// Package dispatcher implements component F: placing an outbound carrier
// call and persisting a record of it (spec.md §4.6).
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
	"github.com/birddigital/voicebridge/pkg/validate"
)

// statusCallbackEvents is the fixed lifecycle subscription spec.md §4.6
// names.
var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// Record is a persisted outbound-call row.
type Record struct {
	ID                uuid.UUID
	CallSID           string
	From              string
	To                string
	ControlDocumentURL string
	Recording         bool
	StatusCallbackURL string
	CreatedAt         time.Time
}

// Dispatcher wraps the carrier's REST calls API and persists a record of
// every placed call.
type Dispatcher struct {
	client *twilio.RestClient
	db     *pgxpool.Pool
}

// New builds a Dispatcher authenticated against the carrier account.
func New(accountSID, authToken string, db *pgxpool.Pool) *Dispatcher {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Dispatcher{client: client, db: db}
}

// Place initiates an outbound call to "to", bridged via the call-control
// document at controlDocumentURL. statusCallbackURL, if non-empty,
// subscribes to {initiated, ringing, answered, completed}.
func (d *Dispatcher) Place(ctx context.Context, to, from, controlDocumentURL string, record bool, statusCallbackURL string) (*Record, error) {
	if !validate.E164(to) {
		return nil, bridgeerr.New(bridgeerr.KindInputInvalid, fmt.Errorf("to %q is not a valid E.164 number", to))
	}
	if !validate.E164(from) {
		return nil, bridgeerr.New(bridgeerr.KindInputInvalid, fmt.Errorf("from %q is not a valid E.164 number", from))
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(controlDocumentURL)
	params.SetMethod("POST")

	if record {
		params.SetRecord(true)
		params.SetRecordingChannels("dual")
	}
	if statusCallbackURL != "" {
		params.SetStatusCallback(statusCallbackURL)
		params.SetStatusCallbackEvent(statusCallbackEvents)
		params.SetStatusCallbackMethod("POST")
	}

	call, err := d.client.Api.CreateCall(params)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindUnexpected, fmt.Errorf("placing outbound call: %w", err))
	}
	if call.Sid == nil {
		return nil, bridgeerr.New(bridgeerr.KindUnexpected, fmt.Errorf("carrier accepted the call but returned no SID"))
	}

	rec := &Record{
		ID:                  uuid.New(),
		CallSID:             *call.Sid,
		From:                from,
		To:                  to,
		ControlDocumentURL:  controlDocumentURL,
		Recording:           record,
		StatusCallbackURL:   statusCallbackURL,
		CreatedAt:           time.Now(),
	}

	if d.db != nil {
		if err := d.insert(ctx, rec); err != nil {
			return nil, bridgeerr.New(bridgeerr.KindUnexpected, fmt.Errorf("persisting call record: %w", err))
		}
	}

	return rec, nil
}

func (d *Dispatcher) insert(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO outbound_calls (
			id, call_sid, from_number, to_number,
			control_document_url, recording, status_callback_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := d.db.Exec(ctx, query,
		rec.ID, rec.CallSID, rec.From, rec.To,
		rec.ControlDocumentURL, rec.Recording, rec.StatusCallbackURL, rec.CreatedAt,
	)
	return err
}

// List returns recent outbound-call records, most recent first.
func (d *Dispatcher) List(ctx context.Context, limit int) ([]Record, error) {
	if d.db == nil {
		return nil, nil
	}
	const query = `
		SELECT id, call_sid, from_number, to_number,
		       control_document_url, recording, status_callback_url, created_at
		FROM outbound_calls
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := d.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CallSID, &r.From, &r.To,
			&r.ControlDocumentURL, &r.Recording, &r.StatusCallbackURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning call record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
