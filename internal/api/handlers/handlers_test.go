package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/pitch"
	"github.com/your-org/pitchtrack/internal/storage"
	"github.com/your-org/pitchtrack/pkg/dto"
)

type memStore struct {
	mu          sync.Mutex
	matches     map[uuid.UUID]*models.Match
	records     map[uuid.UUID][]models.TrackRecord
	homographys map[uuid.UUID]pitch.Homography
	scores      map[uuid.UUID][]models.ThreatScore
	lastQuery   storage.TrackQuery
	frameWipes  []string
}

func newMemStore() *memStore {
	return &memStore{
		matches:     map[uuid.UUID]*models.Match{},
		records:     map[uuid.UUID][]models.TrackRecord{},
		homographys: map[uuid.UUID]pitch.Homography{},
		scores:      map[uuid.UUID][]models.ThreatScore{},
	}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) DeleteFrames(_ context.Context, matchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameWipes = append(s.frameWipes, matchID)
	return 2, nil
}

func (s *memStore) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.New()
	m.Status = models.MatchStatusStopped
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	cp := *m
	s.matches[m.ID] = &cp
	return nil
}

func (s *memStore) GetMatch(_ context.Context, id uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) ListMatches(context.Context) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		out = append(out, *m)
	}
	return out, nil
}

func (s *memStore) UpdateMatchStatus(_ context.Context, id uuid.UUID, status models.MatchStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status, m.ErrorMessage = status, errMsg
	return nil
}

func (s *memStore) DeleteMatch(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.matches, id)
	return nil
}

func (s *memStore) QueryTrackRecords(_ context.Context, matchID uuid.UUID, q storage.TrackQuery) ([]models.TrackRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = q
	recs := s.records[matchID]
	return recs, len(recs), nil
}

func (s *memStore) SaveHomography(_ context.Context, matchID uuid.UUID, h pitch.Homography) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.homographys[matchID] = h
	return nil
}

func (s *memStore) GetHomography(_ context.Context, matchID uuid.UUID) (pitch.Homography, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.homographys[matchID]
	if !ok {
		return pitch.Homography{}, storage.ErrNotFound
	}
	return h, nil
}

func (s *memStore) SaveThreatScores(_ context.Context, matchID uuid.UUID, scores []models.ThreatScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[matchID] = scores
	return nil
}

func (s *memStore) ListThreatScores(_ context.Context, matchID uuid.UUID) ([]models.ThreatScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[matchID], nil
}

type fakeControl struct {
	mu      sync.Mutex
	cmds    []models.MatchCommand
	err     error
	pingErr error
}

func (f *fakeControl) PublishControl(cmd any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd.(models.MatchCommand))
	return nil
}

func (f *fakeControl) Ping() error { return f.pingErr }

func newTestRouter(db *memStore, ctl *fakeControl) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	sys := NewSystemHandler(db, db, ctl)
	r.GET("/healthz", sys.Healthz)
	r.GET("/readyz", sys.Readyz)

	mh := NewMatchHandler(db, db, ctl, 25)
	r.POST("/matches", mh.Create)
	r.GET("/matches", mh.List)
	r.GET("/matches/:id", mh.Get)
	r.DELETE("/matches/:id", mh.Delete)
	r.POST("/matches/:id/start", mh.Start)
	r.POST("/matches/:id/stop", mh.Stop)

	th := NewTrackHandler(db)
	r.GET("/matches/:id/tracks", th.List)

	ah := NewAnalysisHandler(db, 105, 68)
	r.PUT("/matches/:id/homography", ah.PutHomography)
	r.GET("/matches/:id/homography", ah.GetHomography)
	r.POST("/matches/:id/xt", ah.ComputeXT)
	r.GET("/matches/:id/xt", ah.GetXT)
	return r
}

func do(r http.Handler, method, url, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createMatch(t *testing.T, r http.Handler) dto.MatchResponse {
	t.Helper()
	w := do(r, http.MethodPost, "/matches", `{"name":"final","source_url":"/data/final.mp4","source_type":"file"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var m dto.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestSystem(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/readyz", "").Code)

	r = newTestRouter(newMemStore(), &fakeControl{pingErr: errors.New("nats not connected")})
	w := do(r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "nats not connected")
}

func TestMatch_CreateGetList(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})

	m := createMatch(t, r)
	assert.Equal(t, 25, m.FPS, "default fps applied")
	assert.Equal(t, string(models.MatchStatusStopped), m.Status)

	w := do(r, http.MethodGet, "/matches/"+m.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/matches", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.MatchListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestMatch_CreateValidation(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/matches", `{"source_type":"file"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/matches", `{"source_url":"x","source_type":"ftp"}`).Code)
}

func TestMatch_NotFoundAndBadID(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/matches/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/matches/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/matches/"+uuid.NewString(), "").Code)
}

func TestMatch_StartStop(t *testing.T) {
	db, ctl := newMemStore(), &fakeControl{}
	r := newTestRouter(db, ctl)
	m := createMatch(t, r)

	w := do(r, http.MethodPost, "/matches/"+m.ID.String()+"/start", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, ctl.cmds, 1)
	assert.Equal(t, models.MatchCommand{
		Action:  models.CommandStart,
		MatchID: m.ID.String(),
		URL:     "/data/final.mp4",
		Type:    "file",
		FPS:     25,
	}, ctl.cmds[0])

	require.NoError(t, db.UpdateMatchStatus(context.Background(), m.ID, models.MatchStatusRunning, ""))
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/matches/"+m.ID.String()+"/start", "").Code)

	w = do(r, http.MethodPost, "/matches/"+m.ID.String()+"/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CommandStop, ctl.cmds[1].Action)
	got, _ := db.GetMatch(context.Background(), m.ID)
	assert.Equal(t, models.MatchStatusStopped, got.Status)
}

func TestMatch_StartPublishFailure(t *testing.T) {
	db, ctl := newMemStore(), &fakeControl{err: errors.New("nats down")}
	r := newTestRouter(db, ctl)
	m := createMatch(t, r)

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/matches/"+m.ID.String()+"/start", "").Code)
	got, _ := db.GetMatch(context.Background(), m.ID)
	assert.Equal(t, models.MatchStatusError, got.Status)
}

func TestMatch_DeleteRunningStopsFirst(t *testing.T) {
	db, ctl := newMemStore(), &fakeControl{}
	r := newTestRouter(db, ctl)
	m := createMatch(t, r)
	require.NoError(t, db.UpdateMatchStatus(context.Background(), m.ID, models.MatchStatusRunning, ""))

	w := do(r, http.MethodDelete, "/matches/"+m.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"frames_deleted":2`)
	require.Len(t, ctl.cmds, 1)
	assert.Equal(t, models.CommandStop, ctl.cmds[0].Action)
	assert.Equal(t, []string{m.ID.String()}, db.frameWipes)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/matches/"+m.ID.String(), "").Code)
}

func TestTracks_List(t *testing.T) {
	db := newMemStore()
	r := newTestRouter(db, &fakeControl{})
	m := createMatch(t, r)
	db.records[m.ID] = []models.TrackRecord{models.NewTrackRecord(3, 10, [4]float64{0, 0, 2, 2}, 0.7)}

	w := do(r, http.MethodGet, "/matches/"+m.ID.String()+"/tracks?track_id=3&from=5&to=20&limit=10&offset=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.TrackListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, int64(3), resp.Records[0].TrackID)
	assert.Equal(t, [2]float64{1, 1}, resp.Records[0].Centroid)

	q := db.lastQuery
	require.NotNil(t, q.TrackID)
	assert.Equal(t, int64(3), *q.TrackID)
	assert.Equal(t, 5, *q.FromFrame)
	assert.Equal(t, 20, *q.ToFrame)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 2, q.Offset)
}

func TestTracks_BadQuery(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	m := createMatch(t, r)
	base := "/matches/" + m.ID.String() + "/tracks"
	for _, qs := range []string{"?track_id=x", "?from=a", "?to=b", "?limit=0", "?offset=-1"} {
		assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, base+qs, "").Code, qs)
	}
}

const squarePoints = "image_x,image_y,pitch_x,pitch_y\n0,0,0,0\n100,0,105,0\n100,100,105,68\n0,100,0,68\n"

func TestHomography_PutAndGet(t *testing.T) {
	db := newMemStore()
	r := newTestRouter(db, &fakeControl{})
	m := createMatch(t, r)
	url := "/matches/" + m.ID.String() + "/homography"

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, url, "").Code)

	w := do(r, http.MethodPut, url, squarePoints)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.HomographyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Points)
	assert.InDelta(t, 1.05, resp.Homography[0][0], 1e-9)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, url, "").Code)
}

func TestHomography_Rejects(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	m := createMatch(t, r)
	url := "/matches/" + m.ID.String() + "/homography"

	threePoints := "image_x,image_y,pitch_x,pitch_y\n0,0,0,0\n1,0,1,0\n0,1,0,1\n"
	assert.Equal(t, http.StatusUnprocessableEntity, do(r, http.MethodPut, url, threePoints).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, url, "a,b\n1,2\n").Code)
}

func TestXT_ComputeAndList(t *testing.T) {
	db := newMemStore()
	r := newTestRouter(db, &fakeControl{})
	m := createMatch(t, r)
	xtURL := "/matches/" + m.ID.String() + "/xt"
	table := "x_bin,y_bin,value\n0,0,0.1\n1,0,0.5\n"

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, xtURL, table).Code, "homography required first")

	db.homographys[m.ID] = pitch.Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	db.records[m.ID] = []models.TrackRecord{
		models.NewTrackRecord(1, 0, [4]float64{0, 0, 20, 20}, 0.9),   // centroid (10,10): bin 0
		models.NewTrackRecord(1, 1, [4]float64{80, 0, 100, 20}, 0.9), // centroid (90,10): bin 1
	}

	w := do(r, http.MethodPost, xtURL, table)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.ThreatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Scores, 1)
	assert.InDelta(t, 0.4, resp.Scores[0].XT, 1e-12)
	assert.Equal(t, -1, db.lastQuery.Limit, "all records are scored")

	w = do(r, http.MethodGet, xtURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"track_id":1`)
}

func TestXT_EmptyListIsArray(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	m := createMatch(t, r)
	w := do(r, http.MethodGet, "/matches/"+m.ID.String()+"/xt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scores":[]`)
}

func TestXT_RejectsNonFiniteTable(t *testing.T) {
	r := newTestRouter(newMemStore(), &fakeControl{})
	m := createMatch(t, r)
	xtURL := "/matches/" + m.ID.String() + "/xt"

	for _, body := range []string{
		"x_bin,y_bin,value\nNaN,0,0.1\n",
		"x_bin,y_bin,value\n0,1e12,0.1\n",
	} {
		assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, xtURL, body).Code, body)
	}
}
