package conn

import (
	"context"
	"errors"
	"net/http"

	"github.com/SpatiumPortae/lanbeam/internal/logger"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type connKey struct{}

func WithConn(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

func FromContext(ctx context.Context) (Conn, error) {
	conn, ok := ctx.Value(connKey{}).(Conn)
	if !ok {
		return nil, errors.New("unable to get Conn from context")
	}
	return conn, nil
}

// Middleware upgrades the request to a websocket and stores the resulting Conn in the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lgr, err := logger.FromContext(ctx)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
			if err != nil {
				lgr.Error("failed to upgrade connection", zap.Error(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithConn(ctx, &WS{Conn: wsConn})))
		})
	}
}
