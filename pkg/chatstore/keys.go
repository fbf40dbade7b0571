package chatstore

import (
	"fmt"

	"github.com/haivivi/chatlogo/pkg/kv"
)

// KV key layout.
//
//	chat:{cid}                            → msgpack Conversation
//	chat:{cid}:msg:{ns}:{mid}             → msgpack Message
//	chat:{cid}:stream:{ns}:{sid}          → stream sessions (package stream)
//	user:{uid}:chat:{cid}                 → empty, conversation index
//	user:{uid}:msg:{ns}:{mid}             → empty, user message index
//	doc:{aid}:{ns}                        → msgpack Document version
//	sugg:{aid}:{sid}                      → msgpack Suggestion
//
// {ns} is a zero-padded creation time in Unix nanoseconds so that key
// order is creation order.

func ns(v int64) string {
	return fmt.Sprintf("%020d", v)
}

func chatKey(cid string) kv.Key {
	return kv.Key{"chat", cid}
}

func msgPrefix(cid string) kv.Key {
	return kv.Key{"chat", cid, "msg"}
}

func msgKey(cid string, ts int64, mid string) kv.Key {
	return kv.Key{"chat", cid, "msg", ns(ts), mid}
}

func userChatPrefix(uid string) kv.Key {
	return kv.Key{"user", uid, "chat"}
}

func userChatKey(uid, cid string) kv.Key {
	return kv.Key{"user", uid, "chat", cid}
}

func userMsgPrefix(uid string) kv.Key {
	return kv.Key{"user", uid, "msg"}
}

func userMsgKey(uid string, ts int64, mid string) kv.Key {
	return kv.Key{"user", uid, "msg", ns(ts), mid}
}

func docPrefix(aid string) kv.Key {
	return kv.Key{"doc", aid}
}

func docKey(aid string, ts int64) kv.Key {
	return kv.Key{"doc", aid, ns(ts)}
}

func suggPrefix(aid string) kv.Key {
	return kv.Key{"sugg", aid}
}

func suggKey(aid, sid string) kv.Key {
	return kv.Key{"sugg", aid, sid}
}
