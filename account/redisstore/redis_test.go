package redisstore

import (
	"fmt"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/slitherpit/engine/account/testsuite"
)

var (
	server *miniredis.Miniredis
	store  *Store
)

func TestMain(m *testing.M) {
	redisURL := os.Getenv("REDIS_URL")
	if len(redisURL) == 0 {
		// Setup server
		server = miniredis.NewMiniRedis()
		if err := server.StartAddr("127.0.0.1:9736"); err != nil {
			fmt.Println("unable to start local redis instance")
			os.Exit(1)
		}
		redisURL = fmt.Sprintf("redis://%s", server.Addr())
	}

	// Setup store
	s, err := NewStore(redisURL)
	if err != nil {
		fmt.Println("unable to connect redis store")
		os.Exit(1)
	}
	store = s

	retCode := m.Run()

	store.Close()
	if server != nil {
		server.Close()
	}
	os.Exit(retCode)
}

func TestRedisStore(t *testing.T) {
	testsuite.Suite(t, store, func() {
		if server != nil {
			server.FlushAll()
		}
	})
}
