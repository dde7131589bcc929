package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/queue"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/repository"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitizer"
)

const webhookSecret = "test-secret"

func newTestHandler(t *testing.T, mock sqlmock.Sqlmock, sqlxDB *sqlx.DB) *Handler {
	t.Helper()
	logger := observability.NewNoopLogger()
	validator := NewValidator(webhookSecret, 5*time.Minute)
	deduper := NewDeduper(unreachableRedisClient(), false, logger)
	limiter := resilience.NewSlidingWindowLimiter(unreachableRedisClient(), resilience.SlidingWindowConfig{MaxRequests: 100, WindowSeconds: 60}, logger)
	san := sanitizer.New(sanitizer.DefaultConfig())
	q := queue.New(unreachableRedisClient())

	return New(Config{VerifyToken: "verify-me"}, validator, deduper, limiter, san, sqlxDB,
		repository.NewConversationRepository(sqlxDB), repository.NewMessageRepository(sqlxDB), q, logger)
}

func TestHandler_VerifyChallenge_EchoesOnMatchingToken(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/webhook?mode=subscribe&verify_token=verify-me&challenge=abc123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
}

func TestHandler_VerifyChallenge_RejectsWrongToken(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/webhook?mode=subscribe&verify_token=wrong", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_Ingest_RejectsBadSignature(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	h := newTestHandler(t, mock, sqlxDB)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	body := `{"entry":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Ingest_PersistsAndEnqueuesValidMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	h := newTestHandler(t, mock, sqlxDB)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO conversations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1"))
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectCommit()

	now := time.Now()
	raw := `{"entry":[{"changes":[{"value":{"messages":[{
		"from":"+15551234567","id":"wamid.abc125","timestamp":"` + strconv.FormatInt(now.Unix(), 10) + `","type":"text","text":{"body":"hello there"}
	}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(raw))
	req.Header.Set("X-Hub-Signature-256", sign(webhookSecret, []byte(raw)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Ingest_DuplicateExternalMessageIDReturns409(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	h := newTestHandler(t, mock, sqlxDB)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO conversations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1"))
	mock.ExpectQuery(`INSERT INTO messages`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	raw := `{"entry":[{"changes":[{"value":{"messages":[{
		"from":"+15551234567","id":"wamid.dup1","timestamp":"` + strconv.FormatInt(time.Now().Unix(), 10) + `","type":"text","text":{"body":"hello there"}
	}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(raw))
	req.Header.Set("X-Hub-Signature-256", sign(webhookSecret, []byte(raw)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Ingest_NonTextMessageIsIgnoredNotErrored(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	h := newTestHandler(t, mock, sqlxDB)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	raw := `{"entry":[{"changes":[{"value":{"messages":[{
		"from":"+15551234567","id":"wamid.abc126","timestamp":"` + strconv.FormatInt(time.Now().Unix(), 10) + `","type":"image","text":{"body":""}
	}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(raw))
	req.Header.Set("X-Hub-Signature-256", sign(webhookSecret, []byte(raw)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "non_text_ignored", resp["reason"])
}
