package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ehr/scp/internal/domain/evaluation"
)

type sessionPayload struct {
	BedID        string           `json:"bed_id,omitempty"`
	UnitID       string           `json:"unit_id,omitempty"`
	MethodKey    string           `json:"method_key"`
	Items        evaluation.Items `json:"items"`
	RecordNumber string           `json:"record_number,omitempty"`
	AuthorID     string           `json:"author_id,omitempty"`
}

func (c *Client) CreateSession(ctx context.Context, p evaluation.CreateParams) (*evaluation.Session, error) {
	var s evaluation.Session
	err := c.do(ctx, http.MethodPost, "/sessions", sessionPayload{
		BedID:        p.BedID,
		UnitID:       p.UnitID,
		MethodKey:    p.MethodKey,
		Items:        p.Items,
		RecordNumber: p.RecordNumber,
		AuthorID:     p.AuthorID,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, fmt.Errorf("create session: records service returned no id")
	}
	return &s, nil
}

func (c *Client) UpdateSession(ctx context.Context, p evaluation.UpdateParams) (*evaluation.Session, error) {
	var s evaluation.Session
	err := c.do(ctx, http.MethodPut, "/sessions/"+escape(p.SessionID), sessionPayload{
		MethodKey:    p.MethodKey,
		Items:        p.Items,
		RecordNumber: p.RecordNumber,
		AuthorID:     p.AuthorID,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReleaseSession releases a session. A session the records service no
// longer holds yields evaluation.ErrSessionGone.
func (c *Client) ReleaseSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, http.MethodPost, "/sessions/"+escape(sessionID)+"/release", nil, nil)
	if IsStatus(err, http.StatusNotFound, http.StatusConflict, http.StatusGone) {
		return fmt.Errorf("%w: %v", evaluation.ErrSessionGone, err)
	}
	return err
}

// ListActiveSessions fetches the whole active list of a unit. An entry that
// does not decode is logged and skipped so the rest of the list survives.
func (c *Client) ListActiveSessions(ctx context.Context, unitID string) ([]*evaluation.Session, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/sessions/active?unit_id="+url.QueryEscape(unitID), nil, &raw); err != nil {
		return nil, err
	}
	var entries []json.RawMessage
	if err := decodeList(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode active sessions of unit %s: %w", unitID, err)
	}
	list := make([]*evaluation.Session, 0, len(entries))
	for i, entry := range entries {
		var s evaluation.Session
		if err := json.Unmarshal(entry, &s); err != nil {
			c.logger.Warn().
				Err(err).
				Str("unit_id", unitID).
				Int("index", i).
				Msg("skipping malformed active session entry")
			continue
		}
		list = append(list, &s)
	}
	return list, nil
}
