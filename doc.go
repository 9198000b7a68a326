/*
Package autoframe crops a video stream to follow the people in it.

A Filter requests detections of faces from a pluggable backend (see the
provider package), tracks them across frames with per axis Kalman filters
(see the tracker package) and publishes one smoothed frame window per
video tick.  Detection may run slower than the video and on other threads,
the window is updated on every tick regardless.

Settings are read from YAML files with LoadSettings.  Files written by older
versions are migrated and out of range values are clamped rather than
rejected.
*/
package autoframe
