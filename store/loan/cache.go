package loan

import (
	"context"
	"fmt"
	"time"

	"pledge/core"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"
)

// Cache read through cache of archived loans
func Cache(store core.LoanStore, exp time.Duration) core.LoanStore {
	return &cacheLoanStore{
		LoanStore: store,
		cache:     gcache.New(2048).LRU().Expiration(exp).Build(),
		sf:        &singleflight.Group{},
	}
}

type cacheLoanStore struct {
	core.LoanStore
	cache gcache.Cache
	sf    *singleflight.Group
}

func (s *cacheLoanStore) Save(ctx context.Context, archive *core.LoanArchive) error {
	if err := s.LoanStore.Save(ctx, archive); err != nil {
		return err
	}

	s.cache.Set(s.loanKey(archive.LoanID), archive)
	return nil
}

func (s *cacheLoanStore) Find(ctx context.Context, loanID uint64) (*core.LoanArchive, error) {
	key := s.loanKey(loanID)
	if v, err := s.cache.Get(key); err == nil {
		if archive, ok := v.(*core.LoanArchive); ok {
			return archive, nil
		}
	}

	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		archive, err := s.LoanStore.Find(ctx, loanID)
		if err != nil {
			return nil, err
		}

		if archive.ID > 0 {
			s.cache.Set(key, archive)
		}

		return archive, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*core.LoanArchive), nil
}

func (s *cacheLoanStore) loanKey(loanID uint64) string {
	return fmt.Sprintf("loan:id:%d", loanID)
}
