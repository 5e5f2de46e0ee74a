// Package vector implements the backend adapter over a Redis vector index
// (FT.SEARCH KNN). Raw scores are cosine similarities.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/retrio/internal/backend"
	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/candidate"
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	"github.com/kailas-cloud/retrio/internal/domain/subquery"
)

// BackendID identifies the vector backend in sub-queries and health records.
const BackendID = "vector"

// Stored hash fields.
const (
	fieldTitle     = "title"
	fieldExcerpt   = "excerpt"
	fieldType      = "content_type"
	fieldSource    = "source"
	fieldCategory  = "category"
	fieldTags      = "tags"
	fieldPublished = "published_at"
	fieldScore     = "__vector_score"
)

// Embedder vectorizes query text into the index's embedding space.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Config holds connection parameters for the vector store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	Index     string
	KeyPrefix string
}

// Adapter implements backend.Adapter over Redis FT.SEARCH.
type Adapter struct {
	client rueidis.Client
	embed  Embedder
	index  string
	prefix string
}

var _ backend.Adapter = (*Adapter)(nil)

// New creates a vector adapter.
func New(cfg Config, embed Embedder) (*Adapter, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Adapter{client: client, embed: embed, index: cfg.Index, prefix: cfg.KeyPrefix}, nil
}

// ID implements backend.Adapter.
func (a *Adapter) ID() string { return BackendID }

// Capabilities implements backend.Adapter. Every filter dimension maps to a
// TAG or NUMERIC pre-filter, so nothing is deferred to fusion.
func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		ContentTypes:     domain.AllContentTypes(),
		NativeTags:       true,
		NativeCategories: true,
		NativeSources:    true,
		NativeDates:      true,
	}
}

// Ping checks connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	cmd := a.client.B().Ping().Build()
	if err := a.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (a *Adapter) Close() {
	a.client.Close()
}

// Search embeds the sub-query text and runs a filtered KNN search.
func (a *Adapter) Search(ctx context.Context, sq subquery.SubQuery) ([]candidate.Candidate, error) {
	vec, err := a.embed.Embed(ctx, sq.EmbeddingModel(), sq.Text())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrBackendUnavailable, err)
	}

	queryStr := buildKNNQuery(sq)
	args := []string{a.index, queryStr,
		"RETURN", "8",
		fieldTitle, fieldExcerpt, fieldType, fieldSource, fieldCategory, fieldTags, fieldPublished, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(sq.TopK()),
		"PARAMS", "2", "BLOB", vectorToBytes(vec),
		"DIALECT", "2",
	}

	cmd := a.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := a.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ft.search: %w: %w", domain.ErrBackendUnavailable, err)
	}

	return a.parseResult(raw)
}

// buildKNNQuery renders "(filters)=>[KNN k @vector $BLOB]" in RediSearch syntax.
func buildKNNQuery(sq subquery.SubQuery) string {
	filterStr := buildPreFilter(sq)

	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB AS %s]", sq.TopK(), fieldScore)
	if filterStr == "" {
		return "*=>" + knnPart
	}
	return fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
}

func buildPreFilter(sq subquery.SubQuery) string {
	var parts []string

	if types := sq.ContentTypes(); len(types) > 0 {
		vals := make([]string, len(types))
		for i, t := range types {
			vals[i] = escapeTag(string(t))
		}
		parts = append(parts, fmt.Sprintf("@%s:{%s}", fieldType, strings.Join(vals, " | ")))
	}

	f := sq.Pushdown()
	if tags := f.Tags(); len(tags) > 0 {
		parts = append(parts, tagClause(fieldTags, tags))
	}
	if cats := f.Categories(); len(cats) > 0 {
		parts = append(parts, tagClause(fieldCategory, cats))
	}
	if srcs := f.Sources(); len(srcs) > 0 {
		parts = append(parts, tagClause(fieldSource, srcs))
	}
	if d := f.Dates(); !d.IsZero() {
		parts = append(parts, dateClause(d))
	}

	return strings.Join(parts, " ")
}

func tagClause(field string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escapeTag(v)
	}
	return fmt.Sprintf("@%s:{%s}", field, strings.Join(escaped, " | "))
}

func dateClause(d query.DateRange) string {
	from := "-inf"
	to := "+inf"
	if !d.From().IsZero() {
		from = strconv.FormatInt(d.From().Unix(), 10)
	}
	if !d.To().IsZero() {
		to = strconv.FormatInt(d.To().Unix(), 10)
	}
	return fmt.Sprintf("@%s:[%s %s]", fieldPublished, from, to)
}

// parseResult converts the RESP2 array [total, key1, fields1, ...] into candidates.
func (a *Adapter) parseResult(raw []rueidis.RedisMessage) ([]candidate.Candidate, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", domain.ErrBackendProtocol)
	}
	if total == 0 {
		return nil, nil
	}

	cands := make([]candidate.Candidate, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			return cands, fmt.Errorf("parse entry key: %w", domain.ErrBackendProtocol)
		}

		fieldMsgs, err := raw[i+1].ToArray()
		if err != nil {
			return cands, fmt.Errorf("parse entry fields: %w", domain.ErrBackendProtocol)
		}

		contentID := strings.TrimPrefix(key, a.prefix)
		cands = append(cands, candidateFromFields(contentID, parseFieldPairs(fieldMsgs)))
	}

	return cands, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// candidateFromFields builds a canonical candidate from flat hash fields.
// The KNN score field holds cosine distance; raw score is cosine similarity.
func candidateFromFields(contentID string, fields map[string]string) candidate.Candidate {
	var score float64
	if s, err := strconv.ParseFloat(fields[fieldScore], 64); err == nil {
		score = 1.0 - s // cosine distance → similarity
	}

	md := make(map[string]meta.Value, 4)
	if src := fields[fieldSource]; src != "" {
		md[meta.KeySource] = meta.String(src)
	}
	if cat := fields[fieldCategory]; cat != "" {
		md[meta.KeyCategory] = meta.String(cat)
	}
	if tags := fields[fieldTags]; tags != "" {
		md[meta.KeyTags] = meta.Strings(strings.Split(tags, ",")...)
	}
	if ts := fields[fieldPublished]; ts != "" {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			md[meta.KeyPublished] = meta.Time(time.Unix(unix, 0).UTC())
		}
	}

	return candidate.New(
		contentID,
		domain.ContentType(fields[fieldType]),
		fields[fieldTitle],
		fields[fieldExcerpt],
		score,
		BackendID,
		md,
		nil,
	)
}

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	` `, `\ `,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
