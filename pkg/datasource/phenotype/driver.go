// Package phenotype is the placeholder driver for the generic phenotype
// store. The store keeps no sub-record structure, so every form surface is a
// fixed fragment.
package phenotype

// Driver implements the phenotype placeholder. The zero value is ready to
// use.
type Driver struct{}

// New returns a phenotype Driver.
func New() *Driver {
	return &Driver{}
}

// Configure accepts any configuration document; the driver has nothing to
// configure.
func (d *Driver) Configure(config []byte) error {
	return nil
}

// Create returns the supplied prefix as the new record identifier; the store
// derives everything else from the subject.
func (d *Driver) Create(recordIDPrefix string) (string, error) {
	return recordIDPrefix, nil
}

// SelectionForm returns the post-creation notice shown in place of a
// sub-record table.
func (d *Driver) SelectionForm(formURL string) string {
	return `<h3>Record created. Return to <a href="../../../list/">` +
		`Subject Summary List</a> to view.</h3>`
}

// RecordForm returns the fixed saved-record notice; the store supports no
// further editing.
func (d *Driver) RecordForm(recordID, formSpec string) string {
	return `<h3 style="color:red"><em>The sample record is saved. ` +
		`Currently no other actions are supported.</em></h3><br/><br/>`
}

// NewRecordFormRequired reports whether record creation needs user input;
// phenotype records are created without any.
func (d *Driver) NewRecordFormRequired() bool {
	return false
}
