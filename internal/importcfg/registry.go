package importcfg

import (
	"sync"

	"github.com/wms-admin/gateway/internal/client"
	"github.com/wms-admin/gateway/internal/models"
)

// Registry maps entity keys to their import configs. Content is fixed at
// startup; Register exists so additional entities can be wired without
// changing the lookup contract.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
	order   []string
}

// NewRegistry builds the standard registry with the four importable
// entity types bound to the given API client.
func NewRegistry(api *client.Client) *Registry {
	r := &Registry{configs: make(map[string]*Config)}
	r.Register(warehouseConfig(api))
	r.Register(customerConfig(api))
	r.Register(supplierConfig(api))
	r.Register(binConfig(api))
	return r
}

// Register adds a config. Later registrations with the same key replace
// earlier ones but keep the original ordering position.
func (r *Registry) Register(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.EntityKey]; !exists {
		r.order = append(r.order, cfg.EntityKey)
	}
	r.configs[cfg.EntityKey] = cfg
}

// Get looks up a config by entity key.
func (r *Registry) Get(entityKey string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[entityKey]
	return cfg, ok
}

// EntityTypes returns the supported entity keys in registration order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func warehouseConfig(api *client.Client) *Config {
	return &Config{
		EntityName: "Warehouse",
		EntityKey:  "warehouse",
		TemplateFields: []models.TemplateField{
			{Key: "warehouse_name", Label: "Warehouse Name", Required: true, Type: models.FieldTypeString, MaxLength: 100, Placeholder: "Enter the warehouse name", Example: "Shanghai Central Warehouse"},
			{Key: "warehouse_city", Label: "City", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the city", Example: "Shanghai"},
			{Key: "warehouse_address", Label: "Address", Type: models.FieldTypeString, MaxLength: 200, Placeholder: "Enter the full address", Example: "Zhangjiang Hi-Tech Park, Pudong"},
			{Key: "warehouse_manager", Label: "Manager", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the manager's name", Example: "Zhang San"},
			{Key: "warehouse_contact", Label: "Contact", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the contact number", Example: "13800138000"},
		},
		ValidationRules: []models.ValidationRule{
			{Field: "warehouse_name", Type: models.RuleRequired, Message: "Warehouse name must not be empty"},
			{Field: "warehouse_name", Type: models.RuleMaxLength, Value: 100, Message: "Warehouse name must not exceed 100 characters"},
			{Field: "warehouse_name", Type: models.RuleUnique, Message: "Warehouse name already exists"},
		},
		UniqueFields: []string{"warehouse_name"},
		PreviewColumns: []models.PreviewColumn{
			{Key: "warehouse_name", Label: "Warehouse Name", Width: 150},
			{Key: "warehouse_city", Label: "City", Width: 120},
			{Key: "warehouse_address", Label: "Address", Width: 200},
			{Key: "warehouse_manager", Label: "Manager", Width: 100},
			{Key: "warehouse_contact", Label: "Contact", Width: 150},
		},
		Binding: NewRESTBinding(api, "/warehouses"),
	}
}

func customerConfig(api *client.Client) *Config {
	return &Config{
		EntityName: "Customer",
		EntityKey:  "customer",
		TemplateFields: []models.TemplateField{
			{Key: "customer_name", Label: "Customer Name", Required: true, Type: models.FieldTypeString, MaxLength: 100, Placeholder: "Enter the customer name", Example: "Shanghai Tech Co., Ltd."},
			{Key: "customer_city", Label: "City", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the city", Example: "Shanghai"},
			{Key: "customer_address", Label: "Address", Type: models.FieldTypeString, MaxLength: 200, Placeholder: "Enter the address", Example: "Zhangjiang Hi-Tech Park, Pudong"},
			{Key: "customer_contact", Label: "Contact", Type: models.FieldTypeString, MaxLength: 20, Placeholder: "Enter the contact number", Example: "13800138000"},
			{Key: "customer_manager", Label: "Manager", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the manager's name", Example: "Zhang San"},
		},
		ValidationRules: []models.ValidationRule{
			{Field: "customer_name", Type: models.RuleRequired, Message: "Customer name must not be empty"},
			{Field: "customer_name", Type: models.RuleMaxLength, Value: 100, Message: "Customer name must not exceed 100 characters"},
			{Field: "customer_name", Type: models.RuleUnique, Message: "Customer name already exists"},
		},
		UniqueFields: []string{"customer_name"},
		PreviewColumns: []models.PreviewColumn{
			{Key: "customer_name", Label: "Customer Name", Width: 150},
			{Key: "customer_city", Label: "City", Width: 120},
			{Key: "customer_address", Label: "Address", Width: 200},
			{Key: "customer_contact", Label: "Contact", Width: 120},
			{Key: "customer_manager", Label: "Manager", Width: 100},
		},
		Binding: NewRESTBinding(api, "/customers"),
	}
}

func supplierConfig(api *client.Client) *Config {
	return &Config{
		EntityName: "Supplier",
		EntityKey:  "supplier",
		TemplateFields: []models.TemplateField{
			{Key: "supplier_name", Label: "Supplier Name", Required: true, Type: models.FieldTypeString, MaxLength: 100, Placeholder: "Enter the supplier name", Example: "Beijing Logistics Co., Ltd."},
			{Key: "supplier_city", Label: "City", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the city", Example: "Beijing"},
			{Key: "supplier_address", Label: "Address", Type: models.FieldTypeString, MaxLength: 200, Placeholder: "Enter the full address", Example: "Jianguomenwai Ave, Chaoyang"},
			{Key: "supplier_manager", Label: "Manager", Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the manager's name", Example: "Wang Wu"},
			{Key: "supplier_contact", Label: "Contact", Type: models.FieldTypeString, MaxLength: 20, Placeholder: "Enter the contact number", Example: "010-87654321"},
		},
		ValidationRules: []models.ValidationRule{
			{Field: "supplier_name", Type: models.RuleRequired, Message: "Supplier name must not be empty"},
			{Field: "supplier_name", Type: models.RuleMaxLength, Value: 100, Message: "Supplier name must not exceed 100 characters"},
			{Field: "supplier_name", Type: models.RuleUnique, Message: "Supplier name already exists"},
		},
		UniqueFields: []string{"supplier_name"},
		PreviewColumns: []models.PreviewColumn{
			{Key: "supplier_name", Label: "Supplier Name", Width: 150},
			{Key: "supplier_city", Label: "City", Width: 120},
			{Key: "supplier_address", Label: "Address", Width: 200},
			{Key: "supplier_manager", Label: "Manager", Width: 100},
			{Key: "supplier_contact", Label: "Contact", Width: 150},
		},
		Binding: NewRESTBinding(api, "/suppliers"),
	}
}

func binConfig(api *client.Client) *Config {
	return &Config{
		EntityName: "Bin",
		EntityKey:  "bin",
		TemplateFields: []models.TemplateField{
			{Key: "bin_code", Label: "Bin Code", Required: true, Type: models.FieldTypeString, MaxLength: 50, Placeholder: "Enter the bin code", Example: "A01-01-01"},
			{Key: "bin_name", Label: "Bin Name", Type: models.FieldTypeString, MaxLength: 100, Placeholder: "Enter the bin name", Example: "Zone A row 1 level 1 slot 1"},
			{Key: "warehouse_id", Label: "Warehouse ID", Required: true, Type: models.FieldTypeNumber, Placeholder: "Enter the warehouse ID", Example: "1"},
			{Key: "description", Label: "Description", Type: models.FieldTypeString, MaxLength: 200, Placeholder: "Enter the bin description", Example: "Small items storage"},
		},
		ValidationRules: []models.ValidationRule{
			{Field: "bin_code", Type: models.RuleRequired, Message: "Bin code must not be empty"},
			{Field: "bin_code", Type: models.RuleMaxLength, Value: 50, Message: "Bin code must not exceed 50 characters"},
			{Field: "bin_code", Type: models.RuleUnique, Message: "Bin code already exists"},
			{Field: "warehouse_id", Type: models.RuleRequired, Message: "Warehouse ID must not be empty"},
			{Field: "warehouse_id", Type: models.RuleFormat, Message: "Warehouse ID must be a number"},
		},
		UniqueFields: []string{"bin_code"},
		PreviewColumns: []models.PreviewColumn{
			{Key: "bin_code", Label: "Bin Code", Width: 120},
			{Key: "bin_name", Label: "Bin Name", Width: 150},
			{Key: "warehouse_id", Label: "Warehouse ID", Width: 100},
			{Key: "description", Label: "Description", Width: 200},
		},
		Binding: NewRESTBinding(api, "/bins"),
	}
}
