package subscription

import (
	"sync"
)

const (
	DefaultRate     uint64 = 500
	DefaultWatchdog uint64 = 10000
)

// Info is the throttling state attached to a signal or a message.
//
// For a message, Stamp is a sentinel: 1 while an upstream filter is installed,
// 0 otherwise. For a signal, Stamp is the stamp of the last published value.
type Info struct {
	mux sync.Mutex

	Stamp     uint64
	Rate      uint64
	Watchdog  uint64
	Listeners int
	Flag      Flag

	baseRate     uint64
	baseWatchdog uint64
}

// NewInfo returns an [Info] with the default thresholds.
func NewInfo() *Info {
	return NewInfoWith(DefaultRate, DefaultWatchdog)
}

// NewInfoWith returns an [Info] with the given thresholds.
// They are restored when a torn down subscription is installed again.
func NewInfoWith(rate, watchdog uint64) *Info {
	return &Info{
		Rate:     rate,
		Watchdog: watchdog,
		Flag:     FlagNew,

		baseRate:     rate,
		baseWatchdog: watchdog,
	}
}

// TryLock tries to take exclusive ownership of the info without blocking.
func (i *Info) TryLock() bool {
	return i.mux.TryLock()
}

// Unlock releases an info taken with TryLock.
func (i *Info) Unlock() {
	i.mux.Unlock()
}

// IsActive reports whether an upstream subscription is installed.
func (i *Info) IsActive() bool {
	return i.Stamp != 0
}

// Teardown marks the upstream subscription as removed.
func (i *Info) Teardown() {
	i.Stamp = 0
	i.Rate = 0
	i.Watchdog = 0
}

// Request holds the optional fields of a subscribe request.
type Request struct {
	Rate     *uint64
	Watchdog *uint64
	Flag     *Flag
}

// Params are the thresholds to install upstream.
type Params struct {
	Rate     uint64
	Watchdog uint64
	Flag     Flag
}

// Subscribe reconciles a subscribe request with the message info and,
// for signal verbs, with the signal info (sig may be nil).
//
// Thresholds only tighten while the upstream subscription is active.
// It returns the parameters to install upstream and whether the upstream
// subscription has to be (re)installed. Both infos must be held by the caller.
func Subscribe(msg, sig *Info, req Request) (Params, bool) {
	if !msg.IsActive() {
		if msg.Rate == 0 {
			msg.Rate = msg.baseRate
		}
		if msg.Watchdog == 0 {
			msg.Watchdog = msg.baseWatchdog
		}
	}

	rate := msg.Rate
	if req.Rate != nil {
		rate = *req.Rate
	}

	watchdog := msg.Watchdog
	if req.Watchdog != nil {
		watchdog = *req.Watchdog
	}

	flag := msg.Flag
	if req.Flag != nil {
		flag = *req.Flag
	}

	if sig != nil {
		sig.Rate = min(sig.Rate, rate)
		sig.Watchdog = min(sig.Watchdog, watchdog)
		if flag == FlagAll {
			sig.Flag = FlagAll
		}
	}

	reinstall := !msg.IsActive() ||
		watchdog < msg.Watchdog ||
		rate < msg.Rate ||
		(flag == FlagAll && msg.Flag == FlagNew)

	if reinstall {
		if flag == FlagAll {
			msg.Flag = FlagAll
		}
		msg.Rate = min(msg.Rate, rate)
		msg.Watchdog = min(msg.Watchdog, watchdog)
		msg.Stamp = 1
	}

	if sig != nil {
		sig.Listeners++
	}

	return Params{
		Rate:     msg.Rate,
		Watchdog: msg.Watchdog,
		Flag:     msg.Flag,
	}, reinstall
}
