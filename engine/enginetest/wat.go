package enginetest

import (
	"testing"

	"github.com/wippyai/vmbridge/engine"
)

// ImportModule is the module name GuestWAT imports host functions from.
const ImportModule = "./simple_vm_wasm"

// GuestWAT is a small guest that speaks the dispatch protocol.
//
// run(program, input) behaves by the first byte of program:
//
//	empty  returns an empty result list
//	'!'    throws the rest of program as the error message
//	'#'    returns [3.5, true, null, undefined]
//	'g'    grows memory by two pages, then echoes
//	other  logs program and returns [program, input]
//
// malloc is a bump allocator. set_alloc_limit(n) makes all but the next n
// allocations fail (n < 0 is unlimited); live_allocs reports allocations
// not yet freed.
const GuestWAT = `(module
  (import "./simple_vm_wasm" "__wbg_s_console_log" (func $console_log (param i32 i32)))
  (import "./simple_vm_wasm" "__wbindgen_string_new" (func $string_new (param i32 i32) (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_number_new" (func $number_new (param f64) (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_boolean_new" (func $boolean_new (param i32) (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_null_new" (func $null_new (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_undefined_new" (func $undefined_new (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_object_clone_ref" (func $clone_ref (param i32) (result i32)))
  (import "./simple_vm_wasm" "__wbindgen_object_drop_ref" (func $drop_ref (param i32)))
  (import "./simple_vm_wasm" "__wbindgen_throw" (func $throw (param i32 i32)))

  (memory (export "memory") 1)
  (global $heap (mut i32) (i32.const 1024))
  (global $live (mut i32) (i32.const 0))
  (global $limit (mut i32) (i32.const -1))

  (func $malloc (export "__wbindgen_malloc") (param $n i32) (result i32)
    (local $ptr i32)
    (local $end i32)
    (if (i32.eqz (global.get $limit))
      (then (return (i32.const 0))))
    (if (i32.gt_s (global.get $limit) (i32.const 0))
      (then (global.set $limit (i32.sub (global.get $limit) (i32.const 1)))))
    (local.set $ptr (i32.and (i32.add (global.get $heap) (i32.const 3)) (i32.const -4)))
    (local.set $end (i32.add (local.get $ptr) (local.get $n)))
    (block $done
      (loop $grow
        (br_if $done (i32.le_u (local.get $end) (i32.mul (memory.size) (i32.const 65536))))
        (if (i32.eq (memory.grow (i32.const 1)) (i32.const -1))
          (then (return (i32.const 0))))
        (br $grow)))
    (global.set $heap (local.get $end))
    (global.set $live (i32.add (global.get $live) (i32.const 1)))
    (local.get $ptr))

  (func $free (export "__wbindgen_free") (param $ptr i32) (param $n i32)
    (global.set $live (i32.sub (global.get $live) (i32.const 1))))

  (func (export "set_alloc_limit") (param $n i32)
    (global.set $limit (local.get $n)))

  (func (export "live_allocs") (result i32)
    (global.get $live))

  (func $box (param $ptr i32) (param $len i32) (result i32)
    (local $b i32)
    (local.set $b (call $malloc (i32.const 8)))
    (i32.store (local.get $b) (local.get $ptr))
    (i32.store offset=4 (local.get $b) (local.get $len))
    (local.get $b))

  (func (export "__wbindgen_boxed_str_ptr") (param $b i32) (result i32)
    (i32.load (local.get $b)))

  (func (export "__wbindgen_boxed_str_len") (param $b i32) (result i32)
    (i32.load offset=4 (local.get $b)))

  (func (export "__wbindgen_boxed_str_free") (param $b i32)
    (call $free (i32.load (local.get $b)) (i32.shl (i32.load offset=4 (local.get $b)) (i32.const 2)))
    (call $free (local.get $b) (i32.const 8)))

  (func $retain (param $h i32) (result i32)
    (local $c i32)
    (local.set $c (call $clone_ref (local.get $h)))
    (call $drop_ref (local.get $h))
    (local.get $c))

  (func (export "run") (param $pp i32) (param $pl i32) (param $ip i32) (param $il i32) (result i32)
    (local $arr i32)
    (local $c i32)
    (if (i32.eqz (local.get $pl))
      (then (return (call $box (call $malloc (i32.const 0)) (i32.const 0)))))
    (local.set $c (i32.load8_u (local.get $pp)))
    (if (i32.eq (local.get $c) (i32.const 33))
      (then
        (call $throw (i32.add (local.get $pp) (i32.const 1)) (i32.sub (local.get $pl) (i32.const 1)))
        (unreachable)))
    (if (i32.eq (local.get $c) (i32.const 35))
      (then
        (local.set $arr (call $malloc (i32.const 16)))
        (i32.store (local.get $arr) (call $number_new (f64.const 3.5)))
        (i32.store offset=4 (local.get $arr) (call $boolean_new (i32.const 1)))
        (i32.store offset=8 (local.get $arr) (call $null_new))
        (i32.store offset=12 (local.get $arr) (call $undefined_new))
        (return (call $box (local.get $arr) (i32.const 4)))))
    (if (i32.eq (local.get $c) (i32.const 103))
      (then (drop (memory.grow (i32.const 2)))))
    (call $console_log (local.get $pp) (local.get $pl))
    (local.set $arr (call $malloc (i32.const 8)))
    (i32.store (local.get $arr) (call $string_new (local.get $pp) (local.get $pl)))
    (i32.store offset=4 (local.get $arr) (call $retain (call $string_new (local.get $ip) (local.get $il))))
    (call $box (local.get $arr) (i32.const 2)))
)`

// GuestWasm compiles GuestWAT, skipping the test when the build has no
// WAT assembler.
func GuestWasm(tb testing.TB) []byte {
	tb.Helper()
	wasm, err := engine.CompileWAT(GuestWAT)
	if err != nil {
		tb.Skipf("guest module unavailable: %v", err)
	}
	return wasm
}
