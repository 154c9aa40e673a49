package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/simbridge/internal/model"
)

// stateJSON is the stored shape of model.State.
type stateJSON struct {
	Flags    model.Flags `json:"flags"`
	Thousand bool        `json:"altitude_step_thousand"`
	CRS      string      `json:"crs"`
}

// marshalState converts the guard view to JSON TEXT for storage.
func marshalState(st model.State) (string, error) {
	data, err := json.Marshal(stateJSON{
		Flags:    st.Flags,
		Thousand: st.AltitudeStepIsThousand,
		CRS:      st.CRS.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

// unmarshalState parses JSON TEXT from storage.
func unmarshalState(data string) (model.State, error) {
	var raw stateJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return model.State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	crs, err := model.ParseCRSSelector(raw.CRS)
	if err != nil {
		return model.State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return model.State{
		Flags:                  raw.Flags,
		AltitudeStepIsThousand: raw.Thousand,
		CRS:                    crs,
	}, nil
}

// marshalSettings stores free-form session settings as JSON with sorted keys.
func marshalSettings(settings map[string]string) (string, error) {
	if len(settings) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(data), nil
}

func unmarshalSettings(data string) (map[string]string, error) {
	settings := map[string]string{}
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

func nullParam(p model.Param) sql.NullFloat64 {
	return sql.NullFloat64{Float64: p.Value, Valid: p.Valid}
}

func paramFromNull(n sql.NullFloat64) model.Param {
	if !n.Valid {
		return model.NoParam
	}
	return model.WithParam(n.Float64)
}

func nullError(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
