package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fatih/color"

	"github.com/wcproto/wc-server-go/wc"
)

// promptDelegate queues session requests for the terminal user and
// answers them in arrival order. With auto_approve set it answers
// immediately.
type promptDelegate struct {
	log      *slog.Logger
	accounts []string
	chainID  int64
	meta     wc.ClientMeta
	auto     bool

	mu      sync.Mutex
	pending []pendingApproval
}

type pendingApproval struct {
	session wc.Session
	respond func(wc.WalletInfo)
}

func (d *promptDelegate) walletInfo(approved bool) wc.WalletInfo {
	return wc.NewWalletInfo(approved, d.accounts, d.chainID, d.meta)
}

func (d *promptDelegate) ShouldStartSession(session wc.Session, respond func(wc.WalletInfo)) {
	if d.auto {
		fmt.Printf("%s %s (%s)\n",
			color.GreenString("auto-approving session for"),
			color.CyanString(session.DAppInfo.PeerMeta.Name),
			session.DAppInfo.PeerMeta.URL)
		respond(d.walletInfo(true))
		return
	}

	d.mu.Lock()
	d.pending = append(d.pending, pendingApproval{session: session, respond: respond})
	queued := len(d.pending)
	d.mu.Unlock()

	fmt.Printf("%s %s (%s)\n",
		color.YellowString("session request from"),
		color.CyanString(session.DAppInfo.PeerMeta.Name),
		session.DAppInfo.PeerMeta.URL)
	if queued > 1 {
		fmt.Printf("  %d requests pending\n", queued)
	}
	fmt.Print("  approve? [y/N] ")
}

// answer resolves the oldest pending request. It reports false when
// nothing is pending.
func (d *promptDelegate) answer(approved bool) bool {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return false
	}
	p := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()

	p.respond(d.walletInfo(approved))
	if approved {
		fmt.Printf("%s %s\n", color.GreenString("approved"), p.session.DAppInfo.PeerMeta.Name)
	} else {
		fmt.Printf("%s %s\n", color.RedString("rejected"), p.session.DAppInfo.PeerMeta.Name)
	}
	return true
}

func (d *promptDelegate) SessionConnected(session wc.Session) {
	fmt.Printf("%s %s on topic %s\n",
		color.GreenString("session established with"),
		color.CyanString(session.DAppInfo.PeerMeta.Name),
		session.URL.Topic)
}

func (d *promptDelegate) SessionDisconnected(session wc.Session, err error) {
	if err != nil {
		fmt.Printf("%s %s: %v\n",
			color.RedString("session lost with"),
			color.CyanString(session.DAppInfo.PeerMeta.Name), err)
		return
	}
	fmt.Printf("%s %s\n",
		color.YellowString("session ended with"),
		color.CyanString(session.DAppInfo.PeerMeta.Name))
}

func (d *promptDelegate) ConnectFailed(url wc.URL, err error) {
	d.log.Warn("connection failed before a session was established",
		slog.String("topic", url.Topic), slog.String("err", fmt.Sprint(err)))
}
