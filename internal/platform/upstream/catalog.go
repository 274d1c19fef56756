package upstream

import (
	"context"
	"net/http"

	"github.com/ehr/scp/internal/domain/classification"
	"github.com/ehr/scp/internal/domain/staffing"
)

func (c *Client) GetClassificationMethod(ctx context.Context, idOrKey string) (*classification.Method, error) {
	var m classification.Method
	if err := c.do(ctx, http.MethodGet, "/classification-methods/"+escape(idOrKey), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetUnit(ctx context.Context, unitID string) (*classification.Unit, error) {
	var u classification.Unit
	if err := c.do(ctx, http.MethodGet, "/units/"+escape(unitID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetHospital(ctx context.Context, hospitalID string) (*classification.Hospital, error) {
	var h classification.Hospital
	if err := c.do(ctx, http.MethodGet, "/hospitals/"+escape(hospitalID), nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SaveStaffingResult stores a computed result and returns its id.
func (c *Client) SaveStaffingResult(ctx context.Context, unitID string, r *staffing.Result) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/units/"+escape(unitID)+"/staffing", r, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}
