// Package tray provides a system tray menu for the cat detector.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/catwatch/internal/alert"
)

// TimeLayout is how the last alert time is shown in the menu.
const TimeLayout = "15:04:05"

// Tray represents the system tray application. It implements
// alert.Notifier so fired alerts update the menu.
type Tray struct {
	onToggle func(enabled bool)
	onQuit   func()
	enabled  bool
	count    int
	last     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastAlert *systray.MenuItem
	menuCount     *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main thread.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu, e.g. on SIGINT.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Cat")
	systray.SetTooltip("Cat Detector")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume detection")
	systray.AddSeparator()

	t.menuLastAlert = systray.AddMenuItem(lastTitle(t.last), "Time of the last alert")
	t.menuLastAlert.Disable()
	t.menuCount = systray.AddMenuItem(countTitle(t.count), "Alerts this run")
	t.menuCount.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuQuit := systray.AddMenuItem("Quit", "Quit the cat detector")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	enabled, callback := t.toggle()
	if callback != nil {
		callback(enabled)
	}
}

// toggle flips the state and returns the callback to run outside the lock.
func (t *Tray) toggle() (bool, func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = !t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.enabled))
	}
	return t.enabled, t.onToggle
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Notify implements alert.Notifier.
func (t *Tray) Notify(e alert.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count = e.Seq
	t.last = e.Time.Format(TimeLayout)

	if t.menuLastAlert != nil {
		t.menuLastAlert.SetTitle(lastTitle(t.last))
	}
	if t.menuCount != nil {
		t.menuCount.SetTitle(countTitle(t.count))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Count returns the alert count last reported to the tray.
func (t *Tray) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// LastAlert returns the formatted time of the last alert, or "".
func (t *Tray) LastAlert() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Watching"
	}
	return "○ Paused"
}

func lastTitle(last string) string {
	if last == "" {
		return "Last cat: none"
	}
	return "Last cat: " + last
}

func countTitle(n int) string {
	return fmt.Sprintf("Alerts: %d", n)
}
