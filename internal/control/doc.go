// Package control provides reference-tracking controllers invoked once per
// control tick.
//
// Controllers implement [Controller], computing an input from the current
// value x and the target value xd:
//
//   - [TwoDof]: feedback gain plus a first-order reference filter with its own
//     time constant, so transient shaping is tuned apart from the error gain
//   - [None]: zero output
//
// # Usage
//
//	c := control.NewTwoDof()
//	if err := c.Setup(ke, tc, dt, 0); err != nil {
//	    return err
//	}
//	u, err := c.Update(x, xd) // once per tick
//
// [TwoDof] implements [dynamo.Configurable] for live tuning.
package control
