package tiercache

import (
	"context"
	"time"

	"tiercache/keys"
	"tiercache/logging"
)

// tagSetKey names the remote set holding a tag's member keys.
func tagSetKey(tag string) string {
	return "tag:" + keys.Normalize(tag)
}

// SetWithTags stores value like Set, then records key under each tag's
// remote set. The tag set's expiry is pushed out to the value's TTL plus the
// configured margin, so tag bookkeeping outlives its fastest-expiring member.
// Tag bookkeeping failures are logged and do not undo the value write.
func (s *Service) SetWithTags(ctx context.Context, key string, value interface{}, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	norm := keys.Normalize(key)
	member := s.remote.Key(norm)

	for _, tag := range tags {
		setKey := tagSetKey(tag)
		if err := s.remote.AddToSet(ctx, setKey, member); err != nil {
			s.logger.Error("tag registration failed", err,
				logging.String("key", norm), logging.String("tag", tag))
			continue
		}
		if err := s.remote.Expire(ctx, setKey, ttl+s.cfg.TagExpiryMargin); err != nil {
			s.logger.Error("tag expiry update failed", err, logging.String("tag", tag))
		}
	}
	return nil
}

// InvalidateByTag deletes every key carrying the tag from both tiers and
// drops the tag set itself. It returns the number of remote keys deleted.
// Members are stored in prefixed form, so the local pass strips the prefix
// before matching.
func (s *Service) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	setKey := tagSetKey(tag)

	members, err := s.remote.SetMembers(ctx, setKey)
	if err != nil {
		s.logger.Error("tag lookup failed", err, logging.String("tag", tag))
		return 0, nil
	}
	if len(members) == 0 {
		return 0, nil
	}

	deleted, err := s.remote.DeleteStored(ctx, members...)
	if err != nil {
		s.logger.Error("tag member deletion failed", err, logging.String("tag", tag))
	}

	for _, member := range members {
		s.local.Delete(s.remote.TrimKey(member))
	}

	if _, err := s.remote.Delete(ctx, setKey); err != nil {
		s.logger.Error("tag set deletion failed", err, logging.String("tag", tag))
	}

	s.logger.Info("tag invalidated",
		logging.String("tag", tag), logging.Int64("deleted", deleted))
	return int(deleted), nil
}

// InvalidatePattern deletes every key matching the glob pattern from both
// tiers and returns the remote deletion count. Local removals are matched
// with the pattern translated to a regular expression and are not counted.
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	norm := keys.Normalize(pattern)

	var deleted int64
	stored, err := s.remote.Keys(ctx, norm)
	if err != nil {
		s.logger.Error("pattern listing failed", err, logging.String("pattern", norm))
	} else if len(stored) > 0 {
		if deleted, err = s.remote.DeleteStored(ctx, stored...); err != nil {
			s.logger.Error("pattern deletion failed", err, logging.String("pattern", norm))
		}
	}

	re, err := keys.PatternToRegexp(norm)
	if err != nil {
		s.logger.Error("pattern translation failed", err, logging.String("pattern", norm))
		return int(deleted), nil
	}
	s.local.DeleteFunc(func(key string) bool {
		return re.MatchString(key)
	})

	s.logger.Info("pattern invalidated",
		logging.String("pattern", norm), logging.Int64("deleted", deleted))
	return int(deleted), nil
}
