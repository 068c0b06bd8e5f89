package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/utils"
)

const (
	payloadContentKey = "content"
	maxErrorBodyBytes = 1024
)

type QdrantConfig struct {
	URL        string
	Collection string
	VectorDim  int
}

// QdrantConfigFromEnv reads QDRANT_URL, QDRANT_COLLECTION and
// QDRANT_VECTOR_DIM.
func QdrantConfigFromEnv(log *logger.Logger) QdrantConfig {
	return QdrantConfig{
		URL:        utils.GetEnv("QDRANT_URL", "http://localhost:6333", log),
		Collection: utils.GetEnv("QDRANT_COLLECTION", "wellness_kb", log),
		VectorDim:  utils.GetEnvAsInt("QDRANT_VECTOR_DIM", 1536, log),
	}
}

type qdrantIndex struct {
	log      *logger.Logger
	cfg      QdrantConfig
	baseURL  string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewQdrantIndex verifies the collection is reachable before returning.
func NewQdrantIndex(log *logger.Logger, cfg QdrantConfig) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection required")
	}

	s := &qdrantIndex{
		log:     log.With("service", "QdrantIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}

	s.log.Info("Qdrant index ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *qdrantIndex) SimilaritySearch(ctx context.Context, query []float32, topK int, filter map[string]any) ([]Document, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if s.cfg.VectorDim > 0 && len(query) != s.cfg.VectorDim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(query))
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if qf := translateFilter(filter); qf != nil {
		req["filter"] = qf
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(rawResults))
	for _, item := range rawResults {
		content, _ := item.Payload[payloadContentKey].(string)
		metadata := make(map[string]any, len(item.Payload))
		for k, v := range item.Payload {
			if k == payloadContentKey {
				continue
			}
			metadata[k] = v
		}
		out = append(out, Document{
			Content:  content,
			Metadata: metadata,
			Score:    s.normalizeScore(item.Score),
		})
	}
	return out, nil
}

// translateFilter maps scalar key/value pairs to qdrant match
// conditions. Nested map values are ranking signals for the caller,
// not hard constraints, and are skipped here.
func translateFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]any, 0, len(filter))
	for k, v := range filter {
		switch v.(type) {
		case map[string]any, []any:
			continue
		default:
			must = append(must, map[string]any{
				"key":   k,
				"match": map[string]any{"value": v},
			})
		}
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func (s *qdrantIndex) verifyReady(ctx context.Context) error {
	readyReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return fmt.Errorf("build ready request: %w", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError("qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return fmt.Errorf("qdrant ready check returned status=%d", readyResp.StatusCode)
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && s.cfg.VectorDim > 0 && size != s.cfg.VectorDim {
		return fmt.Errorf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size)
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *qdrantIndex) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError("qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw))
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode qdrant envelope: %w", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return errors.New(statusErr)
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode qdrant result: %w", err)
	}
	return nil
}

func classifyHTTPCallError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: timeout: %w", message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: timeout: %w", message, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *qdrantIndex) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *qdrantIndex) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
