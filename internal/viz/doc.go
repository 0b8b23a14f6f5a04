// Package viz is the live terminal monitor for the control loop, built on
// Bubble Tea.
//
// The [Model] owns a loop and its synthetic feed and advances them in
// simulated real time. It plots the fused orientation against the
// accelerometer, the first joint's command torque and the tracked value.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset loop and parameters
//	Tab   - Select the next tunable parameter
//	Up/K  - Increase the selected parameter by 5%
//	Down/J- Decrease the selected parameter by 5%
//	Q     - Quit
package viz
