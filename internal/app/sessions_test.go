package app

import (
	"context"
	"testing"

	"github.com/dkeye/cbradio/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestSessions_BindRedrawsOnCollision(t *testing.T) {
	req := require.New(t)
	s := NewSessions()
	draws := []domain.UserID{"dup", "dup", "fresh"}
	s.newID = func() domain.UserID {
		id := draws[0]
		draws = draws[1:]
		return id
	}

	first, err := s.Bind("s1", nil)
	req.NoError(err)
	req.Equal(domain.UserID("dup"), first)

	second, err := s.Bind("s2", nil)
	req.NoError(err)
	req.Equal(domain.UserID("fresh"), second)
	req.Equal(2, s.Count())
}

func TestSessions_BindGivesUpAfterAttempts(t *testing.T) {
	req := require.New(t)
	s := NewSessions()
	s.newID = func() domain.UserID { return "same" }

	_, err := s.Bind("s1", nil)
	req.NoError(err)
	_, err = s.Bind("s2", nil)
	req.ErrorIs(err, domain.ErrUserIDTaken)
	req.Equal(1, s.Count())
}

func TestSessions_UnbindFreesUserID(t *testing.T) {
	req := require.New(t)
	s := NewSessions()
	s.newID = func() domain.UserID { return "same" }

	_, err := s.Bind("s1", nil)
	req.NoError(err)
	s.Unbind("s1")
	s.Unbind("s1")

	_, ok := s.UserOf("s1")
	req.False(ok)
	uid, err := s.Bind("s2", nil)
	req.NoError(err)
	req.Equal(domain.UserID("same"), uid)
}

func TestSessions_CancelAll(t *testing.T) {
	req := require.New(t)
	s := NewSessions()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	_, err := s.Bind("s1", cancel1)
	req.NoError(err)
	_, err = s.Bind("s2", cancel2)
	req.NoError(err)

	req.Equal(2, s.CancelAll())
	req.Error(ctx1.Err())
	req.Error(ctx2.Err())
}

func TestNewUserID_Shape(t *testing.T) {
	req := require.New(t)
	a, b := domain.NewUserID(), domain.NewUserID()
	req.Len(string(a), domain.UserIDLen)
	req.NotEqual(a, b)
}
