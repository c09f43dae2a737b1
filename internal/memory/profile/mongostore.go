package profile

import (
	"context"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/agentmem/pkg/component/mongodb"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/id"
)

const (
	historyCollectionName = "history_log"
	profileCollectionName = "profile_entries"
)

// historyDoc and profileDoc mirror HistoryEntry/ProfileEntry with bson tags;
// kept separate from the domain types so storage concerns (field names,
// _id) never leak into the rest of the package.
type historyDoc struct {
	ID         string         `bson:"_id"`
	UserID     string         `bson:"user_id"`
	Content    string         `bson:"content"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Isolations Isolations     `bson:"isolations,omitempty"`
	Timestamp  time.Time      `bson:"timestamp"`
	Ingested   bool           `bson:"ingested"`
}

type profileDoc struct {
	ID         string     `bson:"_id"`
	UserID     string     `bson:"user_id"`
	Tag        string     `bson:"tag"`
	Feature    string     `bson:"feature"`
	Value      string     `bson:"value"`
	Embedding  []float32  `bson:"embedding,omitempty"`
	Isolations Isolations `bson:"isolations,omitempty"`
	Citations  []string   `bson:"citations,omitempty"`
	Timestamp  time.Time  `bson:"timestamp"`
}

// MongoStore is the production Store, backed by two MongoDB collections:
// history_log, indexed by (user_id, isolations, ingested, timestamp), and
// profile_entries, indexed by (user_id, isolations, tag, feature), so the
// extraction and consolidation paths stay on covered queries.
type MongoStore struct {
	client  *mongodb.Client
	history *mongo.Collection
	profile *mongo.Collection
}

// OpenMongoStore connects to MongoDB per opts and ensures the indexes this
// store's query paths rely on.
func OpenMongoStore(ctx context.Context, opts *mongodb.Options) (*MongoStore, error) {
	if opts == nil || opts.Database == "" {
		return nil, memerr.ErrInvalidConfig.WithMessage("profile store: mongodb database is required")
	}
	client, err := mongodb.NewWithContext(ctx, opts)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	s := &MongoStore{
		client:  client,
		history: client.Collection(historyCollectionName),
		profile: client.Collection(profileCollectionName),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	historyIdx := mongoopts.Index().SetName("by_user_isolations_ingested")
	if _, err := s.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "isolations", Value: 1}, {Key: "ingested", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: historyIdx,
	}); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}

	profileIdx := mongoopts.Index().SetName("by_user_isolations_tag_feature")
	if _, err := s.profile.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "isolations", Value: 1}, {Key: "tag", Value: 1}, {Key: "feature", Value: 1}},
		Options: profileIdx,
	}); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close() error {
	return s.client.Close()
}

// Health returns the underlying client's connectivity probe.
func (s *MongoStore) Health() mongodb.HealthChecker {
	return s.client.Health()
}

func (s *MongoStore) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = id.NewULID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.history.InsertOne(ctx, historyDoc{
		ID: entry.ID, UserID: entry.UserID, Content: entry.Content,
		Metadata: entry.Metadata, Isolations: entry.Isolations,
		Timestamp: entry.Timestamp, Ingested: entry.Ingested,
	})
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) UningestedHistory(ctx context.Context, userID string, isolations Isolations, limit int) ([]*HistoryEntry, error) {
	filter := bson.M{"user_id": userID, "ingested": false, "isolations": isolationsFilter(isolations)}
	findOpts := mongoopts.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cur, err := s.history.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer cur.Close(ctx)

	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	out := make([]*HistoryEntry, len(docs))
	for i, d := range docs {
		out[i] = historyFromDoc(d)
	}
	return out, nil
}

func (s *MongoStore) MarkIngested(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.history.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"ingested": true}})
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) HistoryByIDs(ctx context.Context, ids []string) ([]*HistoryEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.history.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer cur.Close(ctx)

	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	out := make([]*HistoryEntry, len(docs))
	for i, d := range docs {
		out[i] = historyFromDoc(d)
	}
	return out, nil
}

func (s *MongoStore) DeleteHistoryRange(ctx context.Context, userID string, isolations Isolations, from, to time.Time) error {
	filter := bson.M{
		"user_id":    userID,
		"isolations": isolationsFilter(isolations),
		"timestamp":  bson.M{"$gte": from, "$lt": to},
	}
	if _, err := s.history.DeleteMany(ctx, filter); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) AddProfileEntry(ctx context.Context, entry *ProfileEntry) error {
	if entry.ID == "" {
		entry.ID = id.NewULID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.profile.InsertOne(ctx, profileDocFrom(entry))
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) FindProfileEntryByValue(ctx context.Context, userID string, isolations Isolations, tag, feature, value string) (*ProfileEntry, error) {
	filter := bson.M{"user_id": userID, "isolations": isolationsFilter(isolations), "tag": tag, "feature": feature, "value": value}
	var doc profileDoc
	err := s.profile.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	return profileFromDoc(doc), nil
}

func (s *MongoStore) FindProfileEntryBySimilarity(ctx context.Context, userID string, isolations Isolations, tag, feature string, embedding []float32, minSimilarity float64) (*ProfileEntry, error) {
	entries, err := s.ListProfileEntriesByFeature(ctx, userID, isolations, tag, feature)
	if err != nil {
		return nil, err
	}
	var best *ProfileEntry
	bestSim := math.Inf(-1)
	for _, e := range entries {
		sim := cosine(embedding, e.Embedding)
		if sim > bestSim {
			bestSim, best = sim, e
		}
	}
	if best == nil || bestSim < minSimilarity {
		return nil, nil
	}
	return best, nil
}

func (s *MongoStore) UpdateProfileEntry(ctx context.Context, id string, value string, embedding []float32, citations []string) error {
	update := bson.M{"$set": bson.M{"value": value, "embedding": embedding, "citations": citations, "timestamp": time.Now()}}
	res, err := s.profile.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if res.MatchedCount == 0 {
		return memerr.ErrStoreNotFound.WithMessagef("profile entry %q not found", id)
	}
	return nil
}

func (s *MongoStore) DeleteProfileEntry(ctx context.Context, id string) error {
	if _, err := s.profile.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) ListProfileEntries(ctx context.Context, userID string, isolations Isolations) ([]*ProfileEntry, error) {
	filter := bson.M{"user_id": userID, "isolations": isolationsFilter(isolations)}
	return s.listProfileEntries(ctx, filter)
}

func (s *MongoStore) ListProfileEntriesByFeature(ctx context.Context, userID string, isolations Isolations, tag, feature string) ([]*ProfileEntry, error) {
	filter := bson.M{"user_id": userID, "isolations": isolationsFilter(isolations), "tag": tag, "feature": feature}
	return s.listProfileEntries(ctx, filter)
}

func (s *MongoStore) listProfileEntries(ctx context.Context, filter bson.M) ([]*ProfileEntry, error) {
	cur, err := s.profile.Find(ctx, filter)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer cur.Close(ctx)

	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	out := make([]*ProfileEntry, len(docs))
	for i, d := range docs {
		out[i] = profileFromDoc(d)
	}
	return out, nil
}

func (s *MongoStore) ReplaceProfileEntries(ctx context.Context, userID string, isolations Isolations, tag, feature string, replacement []*ProfileEntry) error {
	filter := bson.M{"user_id": userID, "isolations": isolationsFilter(isolations), "tag": tag, "feature": feature}
	if _, err := s.profile.DeleteMany(ctx, filter); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if len(replacement) == 0 {
		return nil
	}
	docs := make([]any, len(replacement))
	for i, e := range replacement {
		if e.ID == "" {
			e.ID = id.NewULID()
		}
		docs[i] = profileDocFrom(e)
	}
	if _, err := s.profile.InsertMany(ctx, docs); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) GroupsAboveThreshold(ctx context.Context, userID string, threshold int) ([]FeatureGroup, error) {
	entries, err := s.listProfileEntries(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	counts := map[string]*FeatureGroup{}
	for _, e := range entries {
		key := e.Isolations.Key() + "|" + e.Tag + "|" + e.Feature
		g, ok := counts[key]
		if !ok {
			g = &FeatureGroup{Isolations: e.Isolations, Tag: e.Tag, Feature: e.Feature}
			counts[key] = g
		}
		g.Count++
	}
	var out []FeatureGroup
	for _, g := range counts {
		if g.Count > threshold {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *MongoStore) UsersWithProfiles(ctx context.Context) ([]string, error) {
	ids, err := s.profile.Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (s *MongoStore) SearchSimilar(ctx context.Context, userID string, isolations Isolations, hasIsolations bool, queryVec []float32, k int, minSimilarity float64) ([]*ScoredEntry, error) {
	filter := bson.M{"user_id": userID}
	if hasIsolations {
		filter["isolations"] = isolationsFilter(isolations)
	}
	entries, err := s.listProfileEntries(ctx, filter)
	if err != nil {
		return nil, err
	}

	scored := make([]*ScoredEntry, 0, len(entries))
	for _, e := range entries {
		sim := cosine(queryVec, e.Embedding)
		if sim >= minSimilarity {
			scored = append(scored, &ScoredEntry{Entry: e, Similarity: sim})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *MongoStore) DeleteUserProfileFeature(ctx context.Context, userID string, isolations Isolations, tag, feature string) error {
	filter := bson.M{"user_id": userID, "isolations": isolationsFilter(isolations), "tag": tag, "feature": feature}
	if _, err := s.profile.DeleteMany(ctx, filter); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *MongoStore) DeleteUserProfile(ctx context.Context, userID string) error {
	if _, err := s.profile.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func isolationsFilter(i Isolations) any {
	if len(i) == 0 {
		return bson.M{"$in": bson.A{nil, bson.M{}}}
	}
	return i
}

func historyFromDoc(d historyDoc) *HistoryEntry {
	return &HistoryEntry{ID: d.ID, UserID: d.UserID, Content: d.Content, Metadata: d.Metadata, Isolations: d.Isolations, Timestamp: d.Timestamp, Ingested: d.Ingested}
}

func profileFromDoc(d profileDoc) *ProfileEntry {
	return &ProfileEntry{ID: d.ID, UserID: d.UserID, Tag: d.Tag, Feature: d.Feature, Value: d.Value, Embedding: d.Embedding, Isolations: d.Isolations, Citations: d.Citations, Timestamp: d.Timestamp}
}

func profileDocFrom(e *ProfileEntry) profileDoc {
	return profileDoc{ID: e.ID, UserID: e.UserID, Tag: e.Tag, Feature: e.Feature, Value: e.Value, Embedding: e.Embedding, Isolations: e.Isolations, Citations: e.Citations, Timestamp: e.Timestamp}
}

// cosine is kept local rather than shared with the reranker package: the
// profile store always searches under cosine similarity, regardless of the
// configured embedder's declared metric.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
