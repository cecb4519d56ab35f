package credential_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/okian/casemap/internal/adapters/credential"
	"github.com/okian/casemap/internal/adapters/gateway"
	"github.com/okian/casemap/internal/adapters/gateway/gatewaytest"
	"github.com/okian/casemap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type blockingSource struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *blockingSource) CreateToken(context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.release
	return "tok-shared", nil
}

func TestStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		var s credential.Store

		Convey("Then no token should be set", func() {
			_, ok := s.Token()
			So(ok, ShouldBeFalse)
		})

		Convey("When a token is set twice", func() {
			s.Set("a")
			s.Set("b")

			Convey("Then the last write should win", func() {
				tok, ok := s.Token()
				So(ok, ShouldBeTrue)
				So(tok, ShouldEqual, "b")
			})
		})
	})
}

func TestFetchToken(t *testing.T) {
	Convey("Given a manager backed by the gateway", t, func() {
		ctx := context.Background()
		up := gatewaytest.New()
		defer up.Close()
		client, err := gateway.New(up.URL)
		So(err, ShouldBeNil)
		store := &credential.Store{}
		m := credential.New(client, credential.WithStore(store))

		Convey("When the token endpoint succeeds", func() {
			up.SetTokens("tok-1", "tok-2")
			first, err1 := m.FetchToken(ctx)
			second, err2 := m.FetchToken(ctx)

			Convey("Then each call should overwrite the store", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldEqual, "tok-1")
				So(second, ShouldEqual, "tok-2")
				tok, _ := store.Token()
				So(tok, ShouldEqual, "tok-2")
				So(m.Calls(), ShouldEqual, int64(2))
				So(up.TokenCalls(), ShouldEqual, 2)
				So(m.LastError(), ShouldBeNil)
				So(m.Store(), ShouldEqual, store)
			})
		})

		Convey("When the token endpoint fails", func() {
			up.SetTokenStatus(http.StatusServiceUnavailable)
			_, err := m.FetchToken(ctx)

			Convey("Then a CredentialError should carry the message without retrying", func() {
				var cerr *credential.CredentialError
				So(errors.As(err, &cerr), ShouldBeTrue)
				So(errors.Is(err, credential.ErrCredential), ShouldBeTrue)
				So(errors.Is(err, gateway.ErrStatus), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "token service unavailable")
				So(up.TokenCalls(), ShouldEqual, 1)
				So(m.LastError(), ShouldNotBeNil)
				_, ok := m.Token()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a refresh fails after a success", func() {
			_, err := m.FetchToken(ctx)
			So(err, ShouldBeNil)
			up.SetTokenStatus(http.StatusInternalServerError)
			_, err = m.FetchToken(ctx)

			Convey("Then the previous token should stay in the store", func() {
				So(err, ShouldNotBeNil)
				tok, ok := m.Token()
				So(ok, ShouldBeTrue)
				So(tok, ShouldEqual, "tok-1")
			})
		})
	})

	Convey("Given concurrent refresh requests", t, func() {
		src := &blockingSource{release: make(chan struct{})}
		m := credential.New(src)
		ctx := context.Background()

		Convey("When they overlap", func() {
			var wg sync.WaitGroup
			results := make([]string, 4)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], _ = m.FetchToken(ctx)
				}(i)
			}
			// Let every goroutine join the in-flight request.
			time.Sleep(50 * time.Millisecond)
			close(src.release)
			wg.Wait()

			Convey("Then the source should be hit once", func() {
				So(m.Calls(), ShouldEqual, int64(1))
				for _, r := range results {
					So(r, ShouldEqual, "tok-shared")
				}
			})
		})
	})
}
