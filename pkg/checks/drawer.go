package checks

// DrawerKind names a drawer shown by the flow.
type DrawerKind string

// Drawers, the first four in priority order
const (
	DrawerNone               DrawerKind = ""
	DrawerLockedDevice       DrawerKind = "locked-device"
	DrawerAllowSecureChannel DrawerKind = "allow-secure-channel"
	DrawerNotGenuine         DrawerKind = "device-not-genuine"
	DrawerGenuineCheckError  DrawerKind = "genuine-check-error"
	DrawerFirmwareUpdate     DrawerKind = "firmware-update"
)

// DrawerOptions are passed to the host with every drawer.
type DrawerOptions struct {
	PreventBackdropClick  bool
	ForceDisableFocusTrap bool
	// Closable is false when only a device-side action can dismiss the drawer.
	Closable bool
}

// DrawerProps carries what a drawer needs to render and to call back.
type DrawerProps struct {
	DeviceModelID string
	ProductName   string
	Err           error
	// OnRetry is set on the genuine check error drawer.
	OnRetry func()
	// Update and OnRequestClose are set on the firmware update drawer.
	Update         *UpdateRequest
	OnRequestClose func()
}

// Drawer is one drawer request.
type Drawer struct {
	Kind    DrawerKind
	Props   DrawerProps
	Options DrawerOptions
}

// DrawerHost displays at most one drawer at a time.
type DrawerHost interface {
	Open(d Drawer)
	Close()
}

type nopDrawerHost struct{}

func (nopDrawerHost) Open(Drawer) {}
func (nopDrawerHost) Close()      {}

// DrawerInputs is everything the drawer decision depends on.
type DrawerInputs struct {
	State        FlowState
	Permission   PermissionState
	LockedDevice bool
	GenuineErr   error
}

type drawerRule struct {
	kind  DrawerKind
	match func(in DrawerInputs) bool
}

var drawerRules = []drawerRule{
	{DrawerLockedDevice, func(in DrawerInputs) bool {
		return (in.Permission == PermissionUnlockNeeded && in.State.GenuineCheckStatus == StatusActive) ||
			(in.LockedDevice && in.State.FirmwareUpdateStatus == StatusActive)
	}},
	{DrawerAllowSecureChannel, func(in DrawerInputs) bool {
		return in.Permission == PermissionRequested &&
			(in.State.GenuineCheckStatus == StatusActive || in.State.FirmwareUpdateStatus == StatusActive)
	}},
	{DrawerNotGenuine, func(in DrawerInputs) bool {
		return in.State.GenuineCheckStatus == StatusNotGenuine
	}},
	{DrawerGenuineCheckError, func(in DrawerInputs) bool {
		return in.GenuineErr != nil &&
			(in.State.GenuineCheckStatus == StatusActive || in.State.GenuineCheckStatus == StatusFailed)
	}},
}

// SelectDrawer returns the highest-priority drawer for in, or DrawerNone.
func SelectDrawer(in DrawerInputs) DrawerKind {
	for _, r := range drawerRules {
		if r.match(in) {
			return r.kind
		}
	}
	return DrawerNone
}

func commonDrawerOptions(closable bool) DrawerOptions {
	return DrawerOptions{
		PreventBackdropClick:  true,
		ForceDisableFocusTrap: true,
		Closable:              closable,
	}
}

// Presenter owns the drawer host slot for the lifetime of a flow.
type Presenter struct {
	host     DrawerHost
	open     DrawerKind
	openKey  string
	released bool
}

// NewPresenter takes ownership of host.
func NewPresenter(host DrawerHost) *Presenter {
	return &Presenter{host: host}
}

// Current returns the drawer currently open.
func (p *Presenter) Current() DrawerKind {
	return p.open
}

func drawerKey(d Drawer) string {
	if d.Props.Err != nil {
		return d.Props.Err.Error()
	}
	return ""
}

// Show opens d, closing any other drawer first. Showing the drawer that is
// already open is a no-op.
func (p *Presenter) Show(d Drawer) bool {
	if p.released || d.Kind == DrawerNone {
		return false
	}
	key := drawerKey(d)
	if p.open == d.Kind && p.openKey == key {
		return false
	}
	if p.open != DrawerNone {
		p.host.Close()
	}
	p.host.Open(d)
	p.open, p.openKey = d.Kind, key
	return true
}

// Hide closes the open drawer, if any.
func (p *Presenter) Hide() {
	if p.released || p.open == DrawerNone {
		return
	}
	p.host.Close()
	p.open, p.openKey = DrawerNone, ""
}

// Release closes the host slot unconditionally. Later calls do nothing.
func (p *Presenter) Release() {
	if p.released {
		return
	}
	p.released = true
	p.host.Close()
	p.open, p.openKey = DrawerNone, ""
}
