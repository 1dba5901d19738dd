package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultTimeout = 20 * time.Second
	userAgent      = "news-globe/1.0 (+github.com/mihasm/news-globe)"

	// The backend clamps limit to this range; keep the client honest.
	maxClusterLimit = 5000
)

// Client is a read-only HTTP client for the news-globe backend API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Clusters fetches clusters whose last activity falls inside the trailing
// window given by since (relative "24h"/"7d" or ISO-8601, passed through
// verbatim). The response arrives as a GeoJSON FeatureCollection with the
// full cluster, member items included, in each feature's properties.
func (c *Client) Clusters(ctx context.Context, since string, limit int) ([]Cluster, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		if limit > maxClusterLimit {
			limit = maxClusterLimit
		}
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.get(ctx, "/api/clusters", q)
	if err != nil {
		return nil, err
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties Cluster `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("decoding clusters: %w", err)
	}

	clusters := make([]Cluster, 0, len(fc.Features))
	for _, f := range fc.Features {
		cl := f.Properties
		// The geometry point is authoritative when properties omit coords.
		if cl.Lat == 0 && cl.Lon == 0 && len(f.Geometry.Coordinates) == 2 {
			cl.Lon, cl.Lat = f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		}
		if cl.ClusterID == "" {
			continue
		}
		clusters = append(clusters, cl)
	}
	return clusters, nil
}

// AIS fetches live vessel positions inside the bounding box.
func (c *Client) AIS(ctx context.Context, box BBox) ([]Vehicle, error) {
	body, err := c.bboxGet(ctx, "/api/ais", box)
	if err != nil {
		return nil, err
	}
	// Vessel records nest their coordinates under last_position; a record
	// seen only through static messages has none yet and is skipped.
	var resp struct {
		Count int `json:"count"`
		Items []struct {
			MMSI         int64  `json:"mmsi"`
			Name         string `json:"name"`
			Callsign     string `json:"callsign"`
			LastPosition *struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"last_position"`
			Heading float64 `json:"heading"`
			SOG     float64 `json:"sog"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding ais: %w", err)
	}
	out := make([]Vehicle, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.MMSI == 0 || it.LastPosition == nil {
			continue
		}
		out = append(out, Vehicle{
			ID:       strconv.FormatInt(it.MMSI, 10),
			Kind:     VehicleVessel,
			Name:     it.Name,
			Callsign: it.Callsign,
			Lat:      it.LastPosition.Lat,
			Lon:      it.LastPosition.Lon,
			Heading:  it.Heading,
			Speed:    it.SOG,
		})
	}
	return out, nil
}

// ADSB fetches live aircraft positions inside the bounding box.
func (c *Client) ADSB(ctx context.Context, box BBox) ([]Vehicle, error) {
	body, err := c.bboxGet(ctx, "/api/adsb", box)
	if err != nil {
		return nil, err
	}
	// The backend normalizes provider records to id/icao/callsign with
	// heading_deg/speed_knots; callsign is null when the provider sent none.
	var resp struct {
		Count int `json:"count"`
		Items []struct {
			ID       string  `json:"id"`
			ICAO     string  `json:"icao"`
			Callsign string  `json:"callsign"`
			Lat      float64 `json:"lat"`
			Lon      float64 `json:"lon"`
			Heading  float64 `json:"heading_deg"`
			Speed    float64 `json:"speed_knots"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding adsb: %w", err)
	}
	out := make([]Vehicle, 0, len(resp.Items))
	for _, it := range resp.Items {
		id := it.ICAO
		if id == "" {
			id = it.ID
		}
		if id == "" {
			continue
		}
		out = append(out, Vehicle{
			ID:       id,
			Kind:     VehicleAircraft,
			Callsign: it.Callsign,
			Lat:      it.Lat,
			Lon:      it.Lon,
			Heading:  it.Heading,
			Speed:    it.Speed,
		})
	}
	return out, nil
}

// Config fetches the runtime credentials. Any transport or decode failure
// yields the zero config so the caller can fall back to credential-free
// layers; the error is returned for logging only.
func (c *Client) Config(ctx context.Context) (RemoteConfig, error) {
	var cfg RemoteConfig
	body, err := c.get(ctx, "/api/config", nil)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func (c *Client) bboxGet(ctx context.Context, path string, box BBox) ([]byte, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("min_lat", strconv.FormatFloat(box.MinLat, 'f', -1, 64))
	q.Set("max_lat", strconv.FormatFloat(box.MaxLat, 'f', -1, 64))
	q.Set("min_lon", strconv.FormatFloat(box.MinLon, 'f', -1, 64))
	q.Set("max_lon", strconv.FormatFloat(box.MaxLon, 'f', -1, 64))
	return c.get(ctx, path, q)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: bad status: %s", path, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading body: %w", path, err)
	}
	return body, nil
}
