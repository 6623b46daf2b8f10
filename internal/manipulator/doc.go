// Package manipulator turns source image bytes into derivative bytes by
// running a fixed, ordered chain of manipulators over the decoded bitmap.
//
// Each manipulator reads only the parameters it understands and ignores the
// rest; invalid values behave as if the parameter were absent. Encode is the
// terminal step and the only one that produces output bytes.
package manipulator
