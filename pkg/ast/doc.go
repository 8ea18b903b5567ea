// Package ast defines the parse tree shared by the evaluator and the GoVM
// bytecode compiler.
//
// A script is a Program: a set of named functions, each rooted in a Block.
// Blocks hold conditions, statements and nested blocks; statements and
// conditions are Node trees produced by the expression parser.
//
// Trees have no operator precedence. An Operation's right side is always
// the whole remainder of the expression it was parsed from, so "2*3+4" is
// Operation(2, *, Operation(3, +, 4)).
//
// Save and Load implement the only supported persistence format for trees
// and programs.
package ast
