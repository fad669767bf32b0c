package observer

const (
	DefaultSysfsRoot = "/sys"
	DefaultProcRoot  = "/proc"
	DefaultDevRoot   = "/dev"
	// DefaultNodeGlob accepts every device node of a tracked device.
	DefaultNodeGlob = "*"
	// DefaultWorkers bounds the parallel fd scan when Workers is unset.
	DefaultWorkers = 8
)

// LinuxConfig locates the kernel filesystems read by LinuxRegistry.
type LinuxConfig struct {
	SysfsRoot string
	ProcRoot  string
	DevRoot   string
	// NodeGlob selects, by base name, which device nodes count as client
	// connections, e.g. "event*" or "hidraw*".
	NodeGlob string
	// Workers bounds the parallel scan of process file descriptors.
	Workers int
}

func (c LinuxConfig) withDefaults() LinuxConfig {
	if c.SysfsRoot == "" {
		c.SysfsRoot = DefaultSysfsRoot
	}
	if c.ProcRoot == "" {
		c.ProcRoot = DefaultProcRoot
	}
	if c.DevRoot == "" {
		c.DevRoot = DefaultDevRoot
	}
	if c.NodeGlob == "" {
		c.NodeGlob = DefaultNodeGlob
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}
