// SPDX-License-Identifier: Apache-2.0

// Command memkit runs seeded allocator workloads and reports what the
// allocators did.
package main

func main() {
	execute()
}
