// Package dynamo holds the primitives shared by the joint-control components.
//
// It defines the error taxonomy every component reports through:
//
//   - [ErrInvalidParameter]: bad configuration, rejected and never corrected
//   - [ErrInvalidState]: an operation invoked before its required setup
//   - [ErrSizeMismatch]: a per-tick vector disagrees with the configured joint count
//
// and the small vector helpers used by the control loop.
//
// # Usage
//
//	if _, err := ctrl.Update(x, xd); errors.Is(err, dynamo.ErrInvalidState) {
//	    // controller was never set up
//	}
//
// Nothing in this package allocates on its own; components built on it are
// single-goroutine and owned by one control loop.
package dynamo
