// Package convert implements the type conversion matrix: a dense table of
// coercion functions indexed by the conversion classes of the source and
// destination types.
//
// Importing the package installs the standard matrix as the default
// converter of rtti registries created afterwards.
//
// Conversion policy:
//
//   - Numbers saturate at the destination range: 300 into uint8 is 255,
//     -5 into uint8 is 0. Floats are truncated toward zero when stored into
//     integers, NaN becomes 0, and finite doubles clamp to ±MaxFloat32.
//   - To bool means "differs from the zero value"; handles are true when
//     they point to a live object.
//   - To string prints the source; from string parses the destination.
//   - Enums convert by name to strings and names, by value to numbers.
//     Between two enums the entry name is matched first.
//   - Handles, class references and resource references go through the
//     rtti cast helpers, which check class compatibility.
//
// A failed conversion never modifies the destination.
package convert
