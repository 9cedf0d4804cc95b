// Package viz draws the scene and run data in the terminal: a braille
// [Canvas] with a world [Projection], lipgloss styles for the sequencer
// grid, and asciigraph plots of trigger activity.
package viz
