package ws

import (
	"context"
	"strings"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/types"
)

// FrameWriter emits one typed frame to the client. Implementations serialize
// writes; gorilla connections allow one concurrent writer only.
type FrameWriter interface {
	WriteFrame(frameType string, payload any) error
}

// SocketSink relays progress messages as `progress` frames carrying
// {data, request_id}.
type SocketSink struct {
	log       *logger.Logger
	writer    FrameWriter
	requestID string
}

func NewSocketSink(writer FrameWriter, requestID string, baseLog *logger.Logger) *SocketSink {
	return &SocketSink{
		log:       baseLog.With("service", "SocketSink"),
		writer:    writer,
		requestID: requestID,
	}
}

func (s *SocketSink) Notify(message string) {
	if err := s.writer.WriteFrame(FrameProgress, Payload{Data: message, RequestID: s.requestID}); err != nil {
		s.log.Warn("Progress frame dropped", "error", err)
	}
}

// PersistentSink wraps another sink and additionally classifies messages by
// prefix, durably persisting keyword lists and relationship blobs under the
// search id. Unprefixed messages pass through untouched.
type PersistentSink struct {
	log           *logger.Logger
	next          types.ProgressSink
	schema        string
	searchID      int64
	keywords      *repos.KeywordRepo
	relationships *repos.RelationshipRepo
}

func NewPersistentSink(next types.ProgressSink, schema string, searchID int64, keywords *repos.KeywordRepo, relationships *repos.RelationshipRepo, baseLog *logger.Logger) *PersistentSink {
	return &PersistentSink{
		log:           baseLog.With("service", "PersistentSink"),
		next:          next,
		schema:        schema,
		searchID:      searchID,
		keywords:      keywords,
		relationships: relationships,
	}
}

func (s *PersistentSink) Notify(message string) {
	ctx := context.Background()
	switch {
	case strings.HasPrefix(message, types.PrefixHighLevelKeywords):
		s.persistKeywords(ctx, types.KeywordHigh, strings.TrimPrefix(message, types.PrefixHighLevelKeywords))
	case strings.HasPrefix(message, types.PrefixLowLevelKeywords):
		s.persistKeywords(ctx, types.KeywordLow, strings.TrimPrefix(message, types.PrefixLowLevelKeywords))
	case strings.HasPrefix(message, types.PrefixRelationships):
		payload := strings.TrimPrefix(message, types.PrefixRelationships)
		if err := s.relationships.Upsert(ctx, s.schema, s.searchID, payload); err != nil {
			s.log.Error("Relationship persistence failed", "search_id", s.searchID, "error", err)
		}
	}
	if s.next != nil {
		s.next.Notify(message)
	}
}

func (s *PersistentSink) persistKeywords(ctx context.Context, kwType, payload string) {
	var keywords []string
	for _, kw := range strings.Split(payload, types.SEP) {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return
	}
	if err := s.keywords.InsertMany(ctx, s.schema, s.searchID, kwType, keywords); err != nil {
		s.log.Error("Keyword persistence failed", "search_id", s.searchID, "type", kwType, "error", err)
	}
}
