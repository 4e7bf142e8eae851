package chat

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pansan0/saleidia/internal/kv"
)

// namespace for deterministic chat ids derived from a participant pair
var chatNamespace = uuid.MustParse("6f1c2a9e-4b7d-5e3f-9a21-0c8d7e6b5a41")

func userKey(id string) string { return kv.Key("user", id) }
func friendKey(userID, friendID string) string {
	return kv.Key("friend", userID, friendID)
}
func friendPrefix(userID string) string { return kv.Key("friend", userID, "") }
func requestKey(id string) string { return kv.Key("friend_request", id) }
func requestToKey(toUserID, id string) string { return kv.Key("friend_request_to", toUserID, id) }
func requestToPrefix(toUserID string) string { return kv.Key("friend_request_to", toUserID, "") }
func chatInfoKey(chatID string) string { return kv.Key("chat_info", chatID) }
func chatMemberKey(userID, chatID string) string { return kv.Key("chat", userID, chatID) }
func chatMemberPrefix(userID string) string { return kv.Key("chat", userID, "") }
func chatSeqCounter(chatID string) string { return kv.Key("chat_seq", chatID) }
func chatMessagePrefix(chatID string) string { return kv.Key("chat_message", chatID, "") }

// Sequence numbers are zero padded so the key space sorts like the log.
func chatMessageKey(chatID string, seq int64) string {
	return kv.Key("chat_message", chatID, fmt.Sprintf("%020d", seq))
}

func orderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func requestPairKey(a, b string) string {
	lo, hi := orderedPair(a, b)
	return kv.Key("friend_request_pair", lo, hi)
}

// ChatID is the stable id of the two-party chat between a and b.
func ChatID(a, b string) string {
	lo, hi := orderedPair(a, b)
	return uuid.NewSHA1(chatNamespace, []byte(lo+"|"+hi)).String()
}
