package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pansan0/saleidia/internal/ws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Friends struct {
	*core
	profiles *Profiles
}

// requestRef is the recipient-side index entry; the request body lives only
// under friend_request:<id>.
type requestRef struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (f *Friends) AreFriends(ctx context.Context, a, b string) (bool, error) {
	_, ok, err := f.store.Get(ctx, friendKey(a, b))
	return ok, err
}

// SendRequest proposes a friendship from fromUserID to toUserID on behalf of actorID.
func (f *Friends) SendRequest(ctx context.Context, actorID, fromUserID, toUserID string) (models.FriendRequest, error) {
	if actorID == "" || actorID != fromUserID {
		return models.FriendRequest{}, errors.Wrap(apperr.ErrUnauthorized, "sender does not match token")
	}
	if toUserID == "" {
		return models.FriendRequest{}, errors.Wrap(apperr.ErrValidation, "toUserId is required")
	}
	if toUserID == fromUserID {
		return models.FriendRequest{}, errors.Wrap(apperr.ErrValidation, "cannot send a friend request to yourself")
	}
	if _, err := f.profiles.Get(ctx, toUserID); err != nil {
		return models.FriendRequest{}, err
	}

	friends, err := f.AreFriends(ctx, fromUserID, toUserID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if friends {
		return models.FriendRequest{}, apperr.ErrAlreadyFriends
	}

	req := models.FriendRequest{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.RequestPending,
		CreatedAt:  f.timestamp(),
	}
	// the record goes first so whoever holds the pair guard always has one
	if err := kv.SetJSON(ctx, f.store, requestKey(req.ID), req); err != nil {
		return models.FriendRequest{}, err
	}
	if err := f.claimPair(ctx, req); err != nil {
		if derr := f.store.Delete(ctx, requestKey(req.ID)); derr != nil {
			f.log.Warn("drop unclaimed friend request", zap.String("request_id", req.ID), zap.Error(derr))
		}
		return models.FriendRequest{}, err
	}
	if err := kv.SetJSON(ctx, f.store, requestToKey(toUserID, req.ID), requestRef{ID: req.ID, CreatedAt: req.CreatedAt}); err != nil {
		return models.FriendRequest{}, err
	}

	f.notify([]string{toUserID}, ws.EventFriendRequest, req)
	return req, nil
}

// claimPair reserves the unordered pair for req. The guard key is created
// atomically, so two racing requests for one pair cannot both pass.
func (f *Friends) claimPair(ctx context.Context, req models.FriendRequest) error {
	pairKey := requestPairKey(req.FromUserID, req.ToUserID)
	claimed, err := kv.SetJSONIfAbsent(ctx, f.store, pairKey, requestRef{ID: req.ID, CreatedAt: req.CreatedAt})
	if err != nil || claimed {
		return err
	}

	var holder requestRef
	if _, err := kv.GetJSON(ctx, f.store, pairKey, &holder); err != nil {
		return err
	}
	var existing models.FriendRequest
	ok, err := kv.GetJSON(ctx, f.store, requestKey(holder.ID), &existing)
	if err != nil {
		return err
	}
	if ok && existing.Status == models.RequestPending {
		return apperr.ErrDuplicateRequest
	}

	// the guard outlived its request after an interrupted respond; take it over
	return kv.SetJSON(ctx, f.store, pairKey, requestRef{ID: req.ID, CreatedAt: req.CreatedAt})
}

func (f *Friends) getRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	ok, err := kv.GetJSON(ctx, f.store, requestKey(requestID), &req)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if !ok || req.Status != models.RequestPending {
		return models.FriendRequest{}, errors.Wrapf(apperr.ErrNotFound, "friend request %s", requestID)
	}
	return req, nil
}

// Respond resolves a pending request. Only the recipient may respond, and a
// request can be resolved once; later calls get ErrNotFound.
func (f *Friends) Respond(ctx context.Context, actorID, requestID string, accept bool) (models.FriendRequest, error) {
	unlock := f.locks.lock(requestKey(requestID))
	defer unlock()

	req, err := f.getRequest(ctx, requestID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if actorID != req.ToUserID {
		return models.FriendRequest{}, errors.Wrap(apperr.ErrUnauthorized, "only the recipient can respond")
	}

	if accept {
		if err := f.befriend(ctx, req); err != nil {
			return models.FriendRequest{}, err
		}
		req.Status = models.RequestAccepted
	} else {
		req.Status = models.RequestRejected
	}

	// friendship first, cleanup after: an interrupted accept leaves a pending
	// request that can be accepted again without harm
	for _, key := range []string{
		requestKey(req.ID),
		requestToKey(req.ToUserID, req.ID),
		requestPairKey(req.FromUserID, req.ToUserID),
	} {
		if err := f.store.Delete(ctx, key); err != nil {
			return models.FriendRequest{}, err
		}
	}

	if accept {
		f.notify([]string{req.FromUserID}, ws.EventFriendAccepted, req)
	}
	return req, nil
}

func (f *Friends) befriend(ctx context.Context, req models.FriendRequest) error {
	now := f.timestamp()
	from, err := f.profiles.participant(ctx, req.FromUserID)
	if err != nil {
		return err
	}
	to, err := f.profiles.participant(ctx, req.ToUserID)
	if err != nil {
		return err
	}

	sides := []models.Friend{
		{UserID: req.FromUserID, FriendID: to.ID, Name: to.Name, Avatar: to.Avatar, Since: now, RequestID: req.ID},
		{UserID: req.ToUserID, FriendID: from.ID, Name: from.Name, Avatar: from.Avatar, Since: now, RequestID: req.ID},
	}
	for _, fr := range sides {
		if err := kv.SetJSON(ctx, f.store, friendKey(fr.UserID, fr.FriendID), fr); err != nil {
			return err
		}
	}
	return nil
}

func (f *Friends) List(ctx context.Context, userID string) ([]models.Friend, error) {
	return kv.ListJSON[models.Friend](ctx, f.store, friendPrefix(userID))
}

// PendingRequests lists requests addressed to userID, newest first.
func (f *Friends) PendingRequests(ctx context.Context, actorID, userID string) ([]models.FriendRequest, error) {
	if actorID != userID {
		return nil, errors.Wrap(apperr.ErrUnauthorized, "cannot list another user's requests")
	}
	refs, err := kv.ListJSON[requestRef](ctx, f.store, requestToPrefix(userID))
	if err != nil {
		return nil, err
	}

	out := make([]models.FriendRequest, 0, len(refs))
	for _, ref := range refs {
		req, err := f.getRequest(ctx, ref.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
