package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"
	ws "coursehub/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockProgressService struct {
	mock.Mock
}

func (m *MockProgressService) ReportPosition(ctx context.Context, update dto.PositionUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockProgressService) ReportCompletion(ctx context.Context, event dto.CompletionEvent) (*models.ProgressRecord, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) EndSession(ctx context.Context, userID, lessonID string) error {
	return m.Called(ctx, userID, lessonID).Error(0)
}

func (m *MockProgressService) UpdateNotes(ctx context.Context, userID, lessonID, notes string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) ResetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) GetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func setupServer(t *testing.T, svc *MockProgressService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", "test-user-id")
		c.Next()
	}, ws.PlaybackHandler(svc, nil, zap.NewNop()))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, lessonID string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?lesson_id=" + lessonID
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *gws.Conn) ws.Reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var r ws.Reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestPlaybackHandler_PositionIsForwarded(t *testing.T) {
	svc := new(MockProgressService)
	svc.On("EndSession", mock.Anything, "test-user-id", "lesson-1").Return(nil).Maybe()

	received := make(chan dto.PositionUpdate, 1)
	svc.On("ReportPosition", mock.Anything, mock.AnythingOfType("dto.PositionUpdate")).
		Run(func(args mock.Arguments) { received <- args.Get(1).(dto.PositionUpdate) }).
		Return(nil)

	conn := dial(t, setupServer(t, svc), "lesson-1")
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "position", "position_seconds": 42.5, "duration_seconds": 600,
	}))

	select {
	case u := <-received:
		assert.Equal(t, "test-user-id", u.UserID)
		assert.Equal(t, "lesson-1", u.LessonID)
		assert.Equal(t, 42.5, u.PositionSeconds)
		assert.Equal(t, 600.0, u.DurationSeconds)
	case <-time.After(2 * time.Second):
		t.Fatal("position was not forwarded")
	}
}

func TestPlaybackHandler_CompleteIsAcked(t *testing.T) {
	svc := new(MockProgressService)
	svc.On("EndSession", mock.Anything, "test-user-id", "lesson-1").Return(nil).Maybe()
	svc.On("ReportCompletion", mock.Anything, dto.CompletionEvent{
		UserID: "test-user-id", LessonID: "lesson-1", DurationSeconds: 600,
	}).Return(&models.ProgressRecord{
		UserID: "test-user-id", LessonID: "lesson-1", Completed: true,
		WatchTimeSeconds: 600, DurationSeconds: 600, LastWatchedAt: time.Now(),
	}, nil)

	conn := dial(t, setupServer(t, svc), "lesson-1")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "complete", "duration_seconds": 600}))

	reply := readReply(t, conn)
	assert.Equal(t, ws.TypeAck, reply.Type)
	assert.Equal(t, ws.TypeComplete, reply.For)
	require.NotNil(t, reply.Progress)
	assert.True(t, reply.Progress.Completed)
	assert.Equal(t, 100, reply.Progress.Percentage)
}

func TestPlaybackHandler_PauseFlushes(t *testing.T) {
	svc := new(MockProgressService)
	svc.On("EndSession", mock.Anything, "test-user-id", "lesson-1").Return(nil)

	conn := dial(t, setupServer(t, svc), "lesson-1")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pause"}))

	reply := readReply(t, conn)
	assert.Equal(t, ws.TypeAck, reply.Type)
	assert.Equal(t, ws.TypePause, reply.For)
	svc.AssertCalled(t, "EndSession", mock.Anything, "test-user-id", "lesson-1")
}

func TestPlaybackHandler_BadFrames(t *testing.T) {
	svc := new(MockProgressService)
	svc.On("EndSession", mock.Anything, "test-user-id", "lesson-1").Return(nil).Maybe()

	conn := dial(t, setupServer(t, svc), "lesson-1")

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	assert.Equal(t, ws.TypeError, readReply(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "position"}))
	reply := readReply(t, conn)
	assert.Equal(t, ws.TypeError, reply.Type)
	assert.Contains(t, reply.Message, "position_seconds")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "position", "position_seconds": 3, "speed": 2}))
	assert.Equal(t, ws.TypeError, readReply(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	assert.Equal(t, ws.TypeError, readReply(t, conn).Type)

	svc.AssertNotCalled(t, "ReportPosition", mock.Anything, mock.Anything)
}

func TestPlaybackHandler_CloseEndsSession(t *testing.T) {
	svc := new(MockProgressService)
	ended := make(chan struct{})
	svc.On("EndSession", mock.Anything, "test-user-id", "lesson-1").
		Run(func(mock.Arguments) { close(ended) }).
		Return(nil).Once()

	conn := dial(t, setupServer(t, svc), "lesson-1")
	require.NoError(t, conn.WriteMessage(gws.CloseMessage,
		gws.FormatCloseMessage(gws.CloseNormalClosure, "bye")))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not ended on close")
	}
}

func TestPlaybackHandler_RequiresLesson(t *testing.T) {
	svc := new(MockProgressService)
	srv := setupServer(t, svc)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := ws.NewUpgrader([]string{"https://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))

	assert.True(t, ws.NewUpgrader(nil).CheckOrigin(req))
}
