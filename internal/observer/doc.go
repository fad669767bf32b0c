// Package observer supplies ground truth about processes that use the
// resource without speaking the arbitration protocol.
//
// A [Registry] enumerates the kernel's devices of a configured class and
// the client connections open on them. The [Observer] polls it (and wakes
// early on device-node changes), asks the host's [Hooks] whether each new
// device and client should be tracked, folds the accepted clients into
// one [Observation] per process, and reports the differences since the
// previous pass as a [Change].
//
// On Linux, [LinuxRegistry] reads devices from sysfs, device nodes from
// devfs and client connections from the open file descriptors in procfs.
// A connection's access is inferred from its open mode: read-only
// connections share the device, write-capable ones are treated as
// exclusive.
package observer
