package command

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/store"
)

// maxExpireSeconds keeps seconds*time.Second from overflowing.
const maxExpireSeconds = math.MaxInt64 / int64(time.Second)

func commandTable() []spec {
	return []spec{
		// Connection
		{name: "ping", arity: -1, handler: cmdPing},
		{name: "echo", arity: 2, handler: cmdEcho},

		// Strings
		{name: "set", arity: 3, keyed: true, handler: cmdSet},
		{name: "get", arity: 2, keyed: true, handler: cmdGet},
		{name: "setnx", arity: 3, keyed: true, handler: cmdSetNX},
		{name: "setex", arity: 4, keyed: true, handler: cmdSetEX},

		// Keys
		{name: "del", arity: 2, keyed: true, handler: cmdDel},
		{name: "exists", arity: 2, keyed: true, handler: cmdExists},
		{name: "keys", arity: 2, handler: cmdKeys},
		{name: "expire", arity: 3, keyed: true, handler: cmdExpire},
		{name: "ttl", arity: 2, keyed: true, handler: cmdTTL},
		{name: "type", arity: 2, keyed: true, handler: cmdType},
		{name: "dbsize", arity: 1, handler: cmdDBSize},
		{name: "flushdb", arity: 1, handler: cmdFlushDB},

		// Lists
		{name: "lpush", arity: -3, keyed: true, handler: cmdLPush},
		{name: "rpush", arity: -3, keyed: true, handler: cmdRPush},
		{name: "lpop", arity: 2, keyed: true, handler: cmdLPop},
		{name: "rpop", arity: 2, keyed: true, handler: cmdRPop},
		{name: "lrange", arity: 4, keyed: true, handler: cmdLRange},
		{name: "llen", arity: 2, keyed: true, handler: cmdLLen},

		// Sets
		{name: "sadd", arity: -3, keyed: true, handler: cmdSAdd},
		{name: "srem", arity: -3, keyed: true, handler: cmdSRem},
		{name: "sismember", arity: 3, keyed: true, handler: cmdSIsMember},
		{name: "smembers", arity: 2, keyed: true, handler: cmdSMembers},
		{name: "scard", arity: 2, keyed: true, handler: cmdSCard},
	}
}

func errorReply(err error) protocol.Value {
	if errors.Is(err, store.ErrWrongType) {
		return protocol.Error(err.Error())
	}
	return protocol.Errorf("%v", err)
}

func notInteger() protocol.Value {
	return protocol.Errorf("value is not an integer or out of range")
}

func parseInt(b []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	return n, err == nil
}

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

// Connection commands

func cmdPing(_ *store.Store, args [][]byte) protocol.Value {
	switch len(args) {
	case 0:
		return protocol.Status("PONG")
	case 1:
		return protocol.Bulk(args[0])
	default:
		return protocol.Errorf("wrong number of arguments for 'ping' command")
	}
}

func cmdEcho(_ *store.Store, args [][]byte) protocol.Value {
	return protocol.Bulk(args[0])
}

// String commands

func cmdSet(st *store.Store, args [][]byte) protocol.Value {
	st.Set(string(args[0]), args[1])
	return protocol.OK()
}

func cmdGet(st *store.Store, args [][]byte) protocol.Value {
	value, ok, err := st.Get(string(args[0]))
	if err != nil {
		return errorReply(err)
	}
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.Bulk(value)
}

func cmdSetNX(st *store.Store, args [][]byte) protocol.Value {
	return protocol.Bool(st.SetNX(string(args[0]), args[1]))
}

func cmdSetEX(st *store.Store, args [][]byte) protocol.Value {
	seconds, ok := parseInt(args[1])
	if !ok {
		return notInteger()
	}
	if seconds <= 0 || seconds > maxExpireSeconds {
		return protocol.Errorf("invalid expire time in 'setex' command")
	}
	st.SetEX(string(args[0]), args[2], time.Duration(seconds)*time.Second)
	return protocol.OK()
}

// Key commands

func cmdDel(st *store.Store, args [][]byte) protocol.Value {
	return protocol.Bool(st.Del(string(args[0])))
}

func cmdExists(st *store.Store, args [][]byte) protocol.Value {
	return protocol.Bool(st.Exists(string(args[0])))
}

func cmdKeys(st *store.Store, args [][]byte) protocol.Value {
	return protocol.StringArray(st.Keys(string(args[0])))
}

func cmdExpire(st *store.Store, args [][]byte) protocol.Value {
	seconds, ok := parseInt(args[1])
	if !ok {
		return notInteger()
	}
	if seconds > maxExpireSeconds || seconds < -maxExpireSeconds {
		return protocol.Errorf("invalid expire time in 'expire' command")
	}
	return protocol.Bool(st.Expire(string(args[0]), time.Duration(seconds)*time.Second))
}

func cmdTTL(st *store.Store, args [][]byte) protocol.Value {
	return protocol.Integer(st.TTL(string(args[0])))
}

func cmdType(st *store.Store, args [][]byte) protocol.Value {
	return protocol.Status(st.Type(string(args[0])).String())
}

func cmdDBSize(st *store.Store, _ [][]byte) protocol.Value {
	return protocol.Integer(int64(st.Size()))
}

func cmdFlushDB(st *store.Store, _ [][]byte) protocol.Value {
	st.Flush()
	return protocol.OK()
}

// List commands

func cmdLPush(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.LPush(string(args[0]), args[1:]...)
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdRPush(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.RPush(string(args[0]), args[1:]...)
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdLPop(st *store.Store, args [][]byte) protocol.Value {
	return popReply(st.LPop(string(args[0])))
}

func cmdRPop(st *store.Store, args [][]byte) protocol.Value {
	return popReply(st.RPop(string(args[0])))
}

func popReply(value []byte, ok bool, err error) protocol.Value {
	if err != nil {
		return errorReply(err)
	}
	if !ok {
		return protocol.NullBulk()
	}
	return protocol.Bulk(value)
}

func cmdLRange(st *store.Store, args [][]byte) protocol.Value {
	start, ok1 := parseInt(args[1])
	stop, ok2 := parseInt(args[2])
	if !ok1 || !ok2 {
		return notInteger()
	}
	items, err := st.LRange(string(args[0]), int(start), int(stop))
	if err != nil {
		return errorReply(err)
	}
	return protocol.BulkArray(items)
}

func cmdLLen(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.LLen(string(args[0]))
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}

// Set commands

func cmdSAdd(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.SAdd(string(args[0]), toStrings(args[1:])...)
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdSRem(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.SRem(string(args[0]), toStrings(args[1:])...)
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}

func cmdSIsMember(st *store.Store, args [][]byte) protocol.Value {
	ok, err := st.SIsMember(string(args[0]), string(args[1]))
	if err != nil {
		return errorReply(err)
	}
	return protocol.Bool(ok)
}

func cmdSMembers(st *store.Store, args [][]byte) protocol.Value {
	members, err := st.SMembers(string(args[0]))
	if err != nil {
		return errorReply(err)
	}
	return protocol.StringArray(members)
}

func cmdSCard(st *store.Store, args [][]byte) protocol.Value {
	n, err := st.SCard(string(args[0]))
	if err != nil {
		return errorReply(err)
	}
	return protocol.Integer(int64(n))
}
