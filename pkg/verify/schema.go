package verify

// bundleSchema is the structural contract for exported bundles,
// JSON Schema draft 2020-12. Semantic checks (hash recomputation,
// chain links, policy cross-checks) happen after this gate.
const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://dualguard.schemas.local/bundle.schema.json",
  "type": "object",
  "required": [
    "bundle_id", "format_version", "created_at", "ledger",
    "operations", "audit", "audit_head", "bundle_hash"
  ],
  "properties": {
    "bundle_id": {"type": "string", "minLength": 1},
    "format_version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "created_at": {"type": "string"},
    "ledger": {
      "type": "object",
      "required": [
        "required_approvals", "modification_approvals", "timelock",
        "reviewers", "operation_count", "executed_count"
      ],
      "properties": {
        "required_approvals": {"type": "integer", "minimum": 1},
        "modification_approvals": {"type": "integer", "minimum": 0},
        "timelock": {"type": "string", "minLength": 1},
        "reviewers": {
          "type": "array",
          "items": {"type": "string", "minLength": 1},
          "minItems": 1
        },
        "operation_count": {"type": "integer", "minimum": 0},
        "executed_count": {"type": "integer", "minimum": 0}
      }
    },
    "operations": {
      "type": "array",
      "items": {"$ref": "#/$defs/operation"}
    },
    "audit": {
      "type": "array",
      "items": {"$ref": "#/$defs/entry"}
    },
    "audit_head": {"type": "string", "minLength": 1},
    "bundle_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"}
  },
  "$defs": {
    "operation": {
      "type": "object",
      "required": [
        "id", "target", "value", "modifies_system", "content_hash",
        "registered_at", "approval_count", "approvals", "executed"
      ],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "target": {"type": "string"},
        "value": {"type": "string", "pattern": "^[0-9]+$"},
        "payload": {"type": ["string", "null"]},
        "modifies_system": {"type": "boolean"},
        "content_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
        "registered_at": {"type": "string"},
        "approval_count": {"type": "integer", "minimum": 0},
        "approvals": {
          "type": ["array", "null"],
          "items": {"type": "string", "minLength": 1}
        },
        "executed": {"type": "boolean"}
      }
    },
    "entry": {
      "type": "object",
      "required": [
        "entry_id", "sequence", "timestamp", "kind", "operation_id",
        "operation_hash", "payload", "payload_hash", "previous_hash",
        "entry_hash"
      ],
      "properties": {
        "entry_id": {"type": "string", "minLength": 1},
        "sequence": {"type": "integer", "minimum": 1},
        "timestamp": {"type": "string"},
        "kind": {"enum": ["REGISTERED", "APPROVED", "EXECUTED"]},
        "operation_id": {"type": "integer", "minimum": 1},
        "reviewer": {"type": "string"},
        "operation_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
        "payload": {"type": "object"},
        "payload_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"},
        "previous_hash": {"type": "string", "minLength": 1},
        "entry_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"}
      }
    }
  }
}`
