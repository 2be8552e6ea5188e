package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditStub struct {
	logs []models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

func newRouter(tokens TokenValidator, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/clearances/:studentId/:semester", chain...)
	r.GET("/ws", chain...)
	return r
}

func serve(r *gin.Engine, path, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	tokens := tokenStub{"good": {UserID: "stu-1", Role: models.RoleStudent}}
	r := newRouter(tokens)

	require.Equal(t, http.StatusUnauthorized, serve(r, "/clearances/stu-1/1st", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/clearances/stu-1/1st", "bad").Code)
	require.Equal(t, http.StatusOK, serve(r, "/clearances/stu-1/1st", "good").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/clearances/stu-1/1st", "", "Authorization", "Basic abc").Code)
}

func TestJWTAcceptsQueryTokenOnlyForWebsocketUpgrade(t *testing.T) {
	tokens := tokenStub{"good": {UserID: "t-1", Role: models.RoleTeacher}}
	r := newRouter(tokens)

	require.Equal(t, http.StatusUnauthorized, serve(r, "/ws?access_token=good", "").Code)
	require.Equal(t, http.StatusOK, serve(r, "/ws?access_token=good", "", "Upgrade", "websocket").Code)
}

func TestRBACSelfAndRoles(t *testing.T) {
	tokens := tokenStub{
		"student": {UserID: "stu-1", Role: models.RoleStudent},
		"teacher": {UserID: "t-1", Role: models.RoleTeacher},
		"root":    {UserID: "root", Role: models.RoleSuperAdmin},
	}
	r := newRouter(tokens, RBAC("SELF", string(models.RoleTeacher)))

	require.Equal(t, http.StatusOK, serve(r, "/clearances/stu-1/1st", "student").Code)
	require.Equal(t, http.StatusForbidden, serve(r, "/clearances/stu-2/1st", "student").Code)
	require.Equal(t, http.StatusOK, serve(r, "/clearances/stu-2/1st", "teacher").Code)
	require.Equal(t, http.StatusOK, serve(r, "/clearances/stu-2/1st", "root").Code)

	strict := newRouter(tokens, RequireRoles(models.RoleAdmin))
	require.Equal(t, http.StatusForbidden, serve(strict, "/clearances/stu-1/1st", "student").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &auditStub{}
	tokens := tokenStub{"teacher": {UserID: "t-1", Role: models.RoleTeacher}}
	r := newRouter(tokens, Audit(audit, models.AuditActionDocumentExported, "clearance_document"))

	require.Equal(t, http.StatusOK, serve(r, "/clearances/stu-1/1st", "teacher").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/clearances/stu-1/1st", "").Code)

	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	require.Equal(t, models.AuditActionDocumentExported, log.Action)
	require.Equal(t, "t-1", *log.UserID)
	require.Equal(t, "stu-1", *log.ResourceID)
	require.Contains(t, string(log.NewValues), `"semester":"1st"`)
}

func TestMetricsSkipsWebsocketUpgrades(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/clearances/:studentId/:semester", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "/clearances/stu-1/1st", "")
	serve(r, "/clearances/stu-1/1st", "", "Connection", "Upgrade", "Upgrade", "websocket")
	serve(r, "/nowhere", "")

	require.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}

func TestSetMetaSurvivesWithoutResponseMetaMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	meta := SetMeta(c, MetaChanged, false)
	SetCacheHit(c, true)

	require.Equal(t, false, meta[MetaChanged])
	require.Equal(t, true, ExtractMeta(c)[MetaCacheHit])
}
