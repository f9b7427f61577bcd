package tool

import (
	"context"
	"encoding/json"
)

// GeocoderStub is a deterministic geocoder test double matching the
// documented geocoder shape (spec §4.4: text -> {coordinates|null,
// place_label, geometry_type}). The real geocoder is an external capability
// provider (spec §1); this stub exists so the broker, retry policy, and
// circuit breaker can be exercised without a network dependency.
type GeocoderStub struct{ name string }

var _ Provider = (*GeocoderStub)(nil)

func NewGeocoderStub(name string) *GeocoderStub { return &GeocoderStub{name: name} }

func (g *GeocoderStub) Name() string { return g.name }

func (g *GeocoderStub) Invoke(_ context.Context, req Request) (Response, error) {
	body, err := json.Marshal(map[string]any{
		"coordinates":   nil,
		"place_label":   req.Text,
		"geometry_type": "point",
	})
	if err != nil {
		return Response{}, err
	}
	return Response{Text: string(body)}, nil
}

// ClassifierStub is a deterministic classifier test double matching the
// documented classifier shape (spec §4.4: text -> {labels[], scores[]}).
type ClassifierStub struct{ name string }

var _ Provider = (*ClassifierStub)(nil)

func NewClassifierStub(name string) *ClassifierStub { return &ClassifierStub{name: name} }

func (c *ClassifierStub) Name() string { return c.name }

func (c *ClassifierStub) Invoke(_ context.Context, req Request) (Response, error) {
	body, err := json.Marshal(map[string]any{
		"labels": []string{"unclassified"},
		"scores": []float64{0},
	})
	if err != nil {
		return Response{}, err
	}
	return Response{Text: string(body)}, nil
}
