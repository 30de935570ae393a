/*
Package tree is Loom's naming and ownership substrate.

Components, port sets, event sets and clocks hang off a tree of named
nodes. The tree guarantees nothing about behavior; it exists so every
object has a dotted location for diagnostics ("top.core0.ports.in_req"),
so parents outlive children, and so exported ports can resolve peers by
recursive name search.

A node may carry a Payload pointing back at the object it names; searches
filter on it to find, say, every port called "out_cpu_request" below a
subtree.
*/
package tree
